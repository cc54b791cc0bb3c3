package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestDeliveryRetries(t *testing.T) {
	cases := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"no headers", nil, 0},
		{"fresh delivery", amqp.Table{}, 0},
		{"int32 counter", amqp.Table{"x-retries": int32(2)}, 2},
		{"int64 counter", amqp.Table{"x-retries": int64(3)}, 3},
		{"garbage counter", amqp.Table{"x-retries": "two"}, 0},
	}

	for _, tc := range cases {
		got := DeliveryRetries(amqp.Delivery{Headers: tc.headers})
		if got != tc.want {
			t.Fatalf("%s: retries = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestDeliveryRetries_GiveUpThreshold(t *testing.T) {
	// a delivery that has been through every retry must not be parked again
	d := amqp.Delivery{Headers: amqp.Table{"x-retries": int32(MaxDeliveryAttempts)}}
	if DeliveryRetries(d) < MaxDeliveryAttempts {
		t.Fatal("exhausted delivery reported as retryable")
	}
}
