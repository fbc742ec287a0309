package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/oods/config"
	"github.com/alejandrodnm/oods/internal/adapters/auth"
	"github.com/alejandrodnm/oods/internal/adapters/clock"
	"github.com/alejandrodnm/oods/internal/adapters/lock"
	"github.com/alejandrodnm/oods/internal/adapters/mint"
	"github.com/alejandrodnm/oods/internal/adapters/notify"
	"github.com/alejandrodnm/oods/internal/adapters/redisbus"
	"github.com/alejandrodnm/oods/internal/adapters/storage"
	"github.com/alejandrodnm/oods/internal/application/launch"
	"github.com/alejandrodnm/oods/internal/domain"
	"github.com/alejandrodnm/oods/internal/ports"
)

// app agrupa las dependencias ya cableadas para los subcomandos.
type app struct {
	svc     *launch.Service
	store   *storage.SQLiteStorage
	custody *storage.Custody
	console *notify.Console
	authn   ports.Authenticator
	signer  *auth.Signer // nil sin -key
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, keyHex string) (*app, error) {
	a := &app{console: notify.NewConsole()}

	capMode, err := domain.ParseCapMode(cfg.Rewards.CapMode)
	if err != nil {
		return nil, err
	}

	if keyHex != "" {
		if a.signer, err = auth.NewSigner(keyHex); err != nil {
			return nil, err
		}
	}
	a.authn = auth.Trusted{}
	if cfg.Auth.RequireSignatures {
		if a.signer == nil {
			return nil, errors.New("auth.require_signatures is set: pass -key or OODS_PRIVATE_KEY")
		}
		a.authn = auth.Verifier{}
	}

	a.store, err = storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)
	a.custody = storage.NewCustody(a.store)

	notifiers := notify.Multi{a.console}
	var locker ports.Locker = lock.NewLocal()
	if cfg.Redis.Addr != "" {
		rc, err := redisbus.New(ctx, redisbus.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rc.Close)
		notifiers = append(notifiers, redisbus.NewBus(rc, cfg.Redis.Channel))
		if cfg.Lock.Backend == "redis" {
			locker = redisbus.NewLockManager(rc)
		}
	}

	var minter ports.Minter
	if cfg.Mint.BaseURL != "" {
		minter = mint.NewClient(mint.ClientConfig{
			BaseURL:    cfg.Mint.BaseURL,
			RatePerSec: cfg.Mint.RatePerSec,
			Timeout:    cfg.MintTimeout(),
		})
	} else {
		slog.Debug("mint.base_url not set, using in-memory mint ledger")
		minter = mint.NewLedger()
	}

	a.svc = launch.New(launch.Config{
		CapMode:     capMode,
		LockTTL:     cfg.LockTTL(),
		MintWorkers: cfg.Mint.Workers,
	}, a.store, clock.System{}, a.custody, minter, notifiers, locker)

	slog.Debug("oods ready", "db", cfg.Storage.DSN, "lock", cfg.Lock.Backend,
		"redis", cfg.Redis.Addr != "", "mint", cfg.Mint.BaseURL, "cap", capMode,
		"signatures", cfg.Auth.RequireSignatures)
	return a, nil
}

// Close libera los recursos en orden inverso. Es idempotente.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "err", err)
		}
	}
	a.closers = nil
}

// caller resuelve la identidad que ejecuta op. Con clave, firma el mensaje de
// la operación y lo verifica; sin clave, usa la identidad declarada con -as.
func (a *app) caller(ctx context.Context, as, op, launchID string, fields ...string) (domain.Identity, error) {
	var cred ports.Credential
	if a.signer != nil {
		if as != "" && !sameIdentity(as, a.signer.Identity()) {
			return "", fmt.Errorf("-as %s does not match the signing key (%s)", as, a.signer.Identity())
		}
		c, err := a.signer.Sign(auth.Message(op, launchID, fields...))
		if err != nil {
			return "", err
		}
		cred = c
	} else {
		cred = ports.Credential{Identity: domain.Identity(as)}
	}
	return a.authn.Verify(ctx, cred)
}

func sameIdentity(as string, id domain.Identity) bool {
	got, err := auth.Trusted{}.Verify(context.Background(), ports.Credential{Identity: domain.Identity(as)})
	return err == nil && got == id
}

// exitCode distingue errores del dominio (2) del resto (1).
func exitCode(err error) int {
	if domain.KindOf(err) != domain.KindUnknown {
		return 2
	}
	return 1
}
