package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSM struct {
	value *string
	err   error
	asked string
}

func (f *fakeSM) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.asked = aws.ToString(in.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func TestAWSProvider_GetSecret(t *testing.T) {
	sm := &fakeSM{value: aws.String(`{"email":"ops@fleet.test","password":"pw"}`)}
	p := NewAWSProviderWithClient(sm)

	got, err := p.GetSecret(context.Background(), "prod/fleet-telemetry/credentials")
	require.NoError(t, err)
	assert.Equal(t, "prod/fleet-telemetry/credentials", sm.asked)
	assert.Equal(t, map[string]string{"email": "ops@fleet.test", "password": "pw"}, got)
}

func TestAWSProvider_Errors(t *testing.T) {
	_, err := NewAWSProviderWithClient(&fakeSM{err: errors.New("AccessDenied")}).GetSecret(context.Background(), "x")
	assert.ErrorContains(t, err, "AccessDenied")

	_, err = NewAWSProviderWithClient(&fakeSM{value: aws.String("not-json")}).GetSecret(context.Background(), "x")
	assert.ErrorContains(t, err, "invalid secret format")

	_, err = NewAWSProviderWithClient(&fakeSM{}).GetSecret(context.Background(), "x")
	assert.ErrorContains(t, err, "no string value")
}

func TestCache_PutGetExpire(t *testing.T) {
	now := time.Now()
	c := NewCache[string](time.Minute)
	c.now = func() time.Time { return now }

	c.Put("k", "v")
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok, "expired entries miss")
}

func TestCache_Bust(t *testing.T) {
	c := NewCache[int](time.Hour)
	c.Put("k", 1)
	c.Bust("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_Cleaner(t *testing.T) {
	c := NewCache[int](time.Millisecond)
	c.Put("k", 1)

	stop := make(chan struct{})
	go c.StartCleaner(5*time.Millisecond, stop)
	defer close(stop)

	assert.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return len(c.data) == 0
	}, time.Second, 10*time.Millisecond)
}
