package identity

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// geth's keystore spawns an fsnotify watcher with no Close method.
		goleak.IgnoreTopFunction("github.com/ethereum/go-ethereum/accounts/keystore.(*watcher).loop"),
		goleak.IgnoreAnyFunction("github.com/fsnotify/fsnotify.(*Watcher).readEvents"),
		goleak.IgnoreAnyFunction("github.com/ethereum/go-ethereum/accounts/keystore.(*KeyStore).updater"),
	)
}
