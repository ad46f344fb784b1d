package app

import (
	"errors"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/storify-asia/storify/pkg/httpclient"
	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/pkg/tokencache"
	"github.com/storify-asia/storify/svc/payment"
	"github.com/storify-asia/storify/svc/payment/doku"
	"github.com/storify-asia/storify/svc/payment/paddle"
	"github.com/storify-asia/storify/svc/payment/pewaca"
	"github.com/storify-asia/storify/svc/payment/xendit"
)

// buildGateways returns every gateway with credentials. Unconfigured ones
// are skipped; any other construction error is fatal.
func buildGateways(cfg Config, rdb *goredis.Client, log *slog.Logger) ([]payment.Gateway, error) {
	client := httpclient.New(cfg.GatewayHTTP)
	var gws []payment.Gateway

	add := func(name string, gw payment.Gateway, err error, notConfigured error) error {
		switch {
		case errors.Is(err, notConfigured):
			log.Info("payment gateway disabled", logger.Gateway(name))
			return nil
		case err != nil:
			return err
		}
		gws = append(gws, gw)
		log.Info("payment gateway enabled", logger.Gateway(name))
		return nil
	}

	dk, err := doku.New(cfg.Doku, client)
	if err := add(doku.Name, dk, err, doku.ErrNotConfigured); err != nil {
		return nil, err
	}

	xd, err := xendit.New(cfg.Xendit, client)
	if err := add(xendit.Name, xd, err, xendit.ErrNotConfigured); err != nil {
		return nil, err
	}

	var tokenOpts []tokencache.Option
	if rdb != nil {
		tokenOpts = append(tokenOpts, tokencache.WithStore(tokencache.NewRedisStore(rdb, "")))
	}
	pw, err := pewaca.New(cfg.Pewaca, client, tokenOpts...)
	if err := add(pewaca.Name, pw, err, pewaca.ErrNotConfigured); err != nil {
		return nil, err
	}

	pd, err := paddle.New(cfg.Paddle)
	if err := add(paddle.Name, pd, err, paddle.ErrNotConfigured); err != nil {
		return nil, err
	}

	return gws, nil
}
