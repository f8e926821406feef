// Package cachetest helps testing code built on gqlcache.
package cachetest

import (
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/andreyvit/gqlcache"
	"github.com/andreyvit/gqlcache/descriptor"
)

type TestCache struct {
	*gqlcache.Cache

	T testing.TB
}

// New returns a cache logging verbosely into the test log.
func New(t testing.TB, o gqlcache.Options) *TestCache {
	o.Logger = slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
	}))
	o.Verbose = true
	return &TestCache{
		Cache: gqlcache.New(o),
		T:     t,
	}
}

// Put writes a JSON result, failing the test on error.
func (c *TestCache) Put(op *descriptor.Operation, result string) map[string]any {
	data := Data(result)
	if err := c.Write(op, data); err != nil {
		c.T.Helper()
		c.T.Fatalf("Write(%s) failed: %v", op.Name(), err)
	}
	return data
}

// Eq verifies the confirmed data of op against JSON.
func (c *TestCache) Eq(op *descriptor.Operation, expected string) {
	c.T.Helper()
	c.eq(op, false, expected)
}

// OptimisticEq verifies the optimistic data of op against JSON.
func (c *TestCache) OptimisticEq(op *descriptor.Operation, expected string) {
	c.T.Helper()
	c.eq(op, true, expected)
}

func (c *TestCache) eq(op *descriptor.Operation, optimistic bool, expected string) {
	c.T.Helper()
	res, err := c.Read(op, gqlcache.ReadOptions{Optimistic: optimistic})
	if err != nil {
		c.T.Fatalf("Read(%s) failed: %v", op.Name(), err)
	}
	a, e := JSON(res.Data), JSON(Data(expected))
	if a != e {
		c.T.Errorf("** %s (optimistic=%v) = %s, wanted %s", op.Name(), optimistic, a, e)
	}
}

// Data parses JSON into a result map. "null" yields nil.
func Data(s string) map[string]any {
	var m map[string]any
	must0(json.Unmarshal([]byte(s), &m))
	return m
}

// JSON formats a value as compact JSON with sorted keys.
func JSON(v any) string {
	return string(must(json.Marshal(v)))
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	msg := string(buf)
	origLen := len(msg)
	msg = strings.TrimSuffix(msg, "\n")
	c.t.Log(msg)
	return origLen, nil
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func must0(err error) {
	if err != nil {
		panic(err)
	}
}
