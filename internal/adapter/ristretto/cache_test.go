package ristretto

import (
	"context"
	"testing"
	"time"

	"github.com/devusermeta/nubankx-sub000/internal/port/cache/cachetest"
)

func TestCacheCompliance(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	cachetest.Run(t, c, c.Wait)
}

func TestGetReturnsCopy(t *testing.T) {
	c, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	src := []byte("reply")
	_ = c.Set(ctx, "k", src, time.Minute)
	c.Wait()
	src[0] = 'X'

	got, ok, _ := c.Get(ctx, "k")
	if !ok || string(got) != "reply" {
		t.Fatalf("cached value changed with caller buffer: %q", got)
	}
	got[0] = 'Y'
	again, _, _ := c.Get(ctx, "k")
	if string(again) != "reply" {
		t.Fatalf("cached value changed through Get result: %q", again)
	}
}
