package redis

import "testing"

func TestOptions(t *testing.T) {
	opts, err := options(ClientConfig{Addr: "localhost:6379", DB: 2, PoolSize: 7, TLSEnabled: true})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.PoolSize != 7 || opts.TLSConfig == nil {
		t.Fatalf("opts=%+v", opts)
	}

	opts, err = options(ClientConfig{Addr: "redis://:secret@cache:6380/3", PoolSize: 4})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.Password != "secret" || opts.DB != 3 || opts.PoolSize != 4 {
		t.Fatalf("opts=%+v", opts)
	}
	if opts.ClientName != clientName {
		t.Fatalf("client name=%q", opts.ClientName)
	}

	if _, err := options(ClientConfig{Addr: "redis://host/notadb"}); err == nil {
		t.Fatal("expected parse error")
	}
}
