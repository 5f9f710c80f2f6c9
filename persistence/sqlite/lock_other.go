//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd)

package sqlite

import "go.gazette.dev/docstore/persistence"

type processLock struct{}

func acquireLock(string) (*processLock, error) {
	return nil, &persistence.ConfigurationError{Setting: "exclusive", Want: "flock", Got: "unsupported platform"}
}

func (*processLock) release() error { return nil }
