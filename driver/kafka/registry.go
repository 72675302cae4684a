package kafka

import (
	"fmt"

	"kanal/driver"
)

func init() {
	driver.RegisterConsumer("kafka", func(cfg any) (driver.Consumer, error) {
		c, ok := cfg.(Config)
		if !ok {
			return nil, fmt.Errorf("kafka: want kafka.Config, got %T", cfg)
		}
		return NewConsumer(c)
	})
	driver.RegisterProducer("kafka", func(cfg any) (driver.Producer, error) {
		c, ok := cfg.(Config)
		if !ok {
			return nil, fmt.Errorf("kafka: want kafka.Config, got %T", cfg)
		}
		return NewProducer(c)
	})
}
