package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/corpus-querier/internal/mockcorpus"
)

func main() {
	addr := defaultString("MOCK_CORPUS_ADDR", ":8080")
	fixtures := defaultString("MOCK_CORPUS_FIXTURES", "")

	fs := flag.NewFlagSet("mock-corpus", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&fixtures, "fixtures", fixtures, "YAML file with counts, scripted failures and latency")
	_ = fs.Parse(os.Args[1:])

	srv := mockcorpus.New()
	if fixtures != "" {
		fx, err := mockcorpus.LoadFixtures(fixtures)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		srv = mockcorpus.NewFromFixtures(fx)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-corpus listening on %s (base URL http://localhost%s/run.cgi)\n", addr, addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
