package driver

import "fmt"

// ConsumerFactory builds a consumer driver from a driver-specific config
// value (e.g. kafka.Config).
type ConsumerFactory func(cfg any) (Consumer, error)

// ProducerFactory builds a producer driver from a driver-specific config.
type ProducerFactory func(cfg any) (Producer, error)

var (
	consumers = map[string]ConsumerFactory{}
	producers = map[string]ProducerFactory{}
)

// RegisterConsumer is called from each driver's init() or a main() factory map.
func RegisterConsumer(name string, f ConsumerFactory) { consumers[name] = f }

// RegisterProducer registers a producer driver by name.
func RegisterProducer(name string, f ProducerFactory) { producers[name] = f }

// NewConsumer builds a registered consumer driver by name ("kafka", …).
func NewConsumer(name string, cfg any) (Consumer, error) {
	if f, ok := consumers[name]; ok {
		return f(cfg)
	}
	return nil, fmt.Errorf("driver: unsupported consumer driver %q", name)
}

// NewProducer builds a registered producer driver by name.
func NewProducer(name string, cfg any) (Producer, error) {
	if f, ok := producers[name]; ok {
		return f(cfg)
	}
	return nil, fmt.Errorf("driver: unsupported producer driver %q", name)
}
