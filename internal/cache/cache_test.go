/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCache(client, time.Minute), mr
}

type cachedRule struct {
	RuleID   string
	Priority int
}

func TestSetAndGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	rules := []cachedRule{{RuleID: "rule_1", Priority: 10}, {RuleID: "rule_2", Priority: 1}}
	require.NoError(t, c.Set(ctx, "bank-rules:active", rules, 10*time.Minute))
	assert.True(t, mr.Exists("bank-rules:active"))

	var got []cachedRule
	require.NoError(t, c.Get(ctx, "bank-rules:active", &got))
	assert.Equal(t, rules, got)
}

func TestGetMiss(t *testing.T) {
	c, _ := newTestCache(t)

	var got []cachedRule
	err := c.Get(context.Background(), "missing", &got)
	assert.ErrorIs(t, err, ErrMiss)
	assert.Empty(t, got)
}

func TestDelete(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "bank-rules:active", []cachedRule{{RuleID: "rule_1"}}, time.Minute))
	require.NoError(t, c.Delete(ctx, "bank-rules:active"))
	assert.False(t, mr.Exists("bank-rules:active"))

	var got []cachedRule
	assert.ErrorIs(t, c.Get(ctx, "bank-rules:active", &got), ErrMiss)

	assert.NoError(t, c.Delete(ctx, "never-set"))
}
