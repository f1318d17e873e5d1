package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietcart/api/internal/payments"
	"github.com/vietcart/api/internal/platform/config"
	"github.com/vietcart/api/internal/repositories"
	"github.com/vietcart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Cart     services.CartService
	Vouchers services.VoucherService
	Checkout services.CheckoutService
	Orders   services.OrderService
	Payments services.PaymentService
	Users    services.UserService
	System   services.SystemService
}

// EventPublisher is the union of the order and payment event sinks the
// services publish to.
type EventPublisher interface {
	services.OrderEventPublisher
	services.PaymentEventPublisher
}

// Options carries the optional runtime collaborators assembled in main.
type Options struct {
	Gateway *payments.Manager
	Events  EventPublisher
	Logger  func(ctx context.Context, event string, fields map[string]any)
	Build   services.BuildInfo
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// real implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts Options) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(cfg, reg, opts)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, opts Options) (Services, error) {
	var svc Services

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		CartItems: reg.CartItems(),
		Variants:  reg.Variants(),
		Clock:     time.Now,
		Logger:    opts.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	voucherSvc, err := services.NewVoucherService(services.VoucherServiceDeps{
		Vouchers: reg.Vouchers(),
		Clock:    time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build voucher service: %w", err)
	}
	svc.Vouchers = voucherSvc

	var events services.OrderEventPublisher
	if opts.Events != nil {
		events = opts.Events
	}

	var gateway services.PaymentGateway
	if opts.Gateway != nil {
		gateway = opts.Gateway
	}

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		CartItems:           reg.CartItems(),
		Variants:            reg.Variants(),
		Vouchers:            reg.Vouchers(),
		Orders:              reg.Orders(),
		Addresses:           reg.Addresses(),
		Counters:            reg.Counters(),
		Gateway:             gateway,
		Clock:               time.Now,
		Events:              events,
		Logger:              opts.Logger,
		GatewayTimeout:      cfg.Payments.GatewayTimeout,
		StrictVoucherLookup: cfg.Features.StrictVoucherLookup,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Payments: reg.Payments(),
		Vouchers: reg.Vouchers(),
		Clock:    time.Now,
		Events:   events,
		Logger:   opts.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if opts.Gateway != nil {
		var paymentEvents services.PaymentEventPublisher
		if opts.Events != nil {
			paymentEvents = opts.Events
		}
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Payments: reg.Payments(),
			Verifier: opts.Gateway,
			Clock:    time.Now,
			Events:   paymentEvents,
			Logger:   opts.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:     reg.Users(),
		Addresses: reg.Addresses(),
		Clock:     time.Now,
		Logger:    opts.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		Health: reg.Health(),
		Clock:  time.Now,
		Build:  opts.Build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}
