package broker

import "fmt"

// NewDialer returns the Dialer selected by cfg.Driver.
func NewDialer(cfg Config) (Dialer, error) {
	switch cfg.Driver {
	case "amqp", "":
		return NewAMQPDialer(cfg.AMQPURL, cfg.Exchange), nil
	case "redis":
		return NewRedisDialer(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Exchange), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
