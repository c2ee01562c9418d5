package stm

import "go.uber.org/zap"

// fieldAtomName and the other helpers below keep call sites that log abort/retry
// events free of repeated zap.String/zap.Int boilerplate.

func fieldAtomName(name string) zap.Field {
	return zap.String("atom", name)
}

func fieldAttempt(n int) zap.Field {
	return zap.Int("attempt", n)
}

func fieldRV(rv uint64) zap.Field {
	return zap.Uint64("read_version", rv)
}

func fieldWV(wv uint64) zap.Field {
	return zap.Uint64("write_version", wv)
}
