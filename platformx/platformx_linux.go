package platformx

func maybeEmitWarning() {}
