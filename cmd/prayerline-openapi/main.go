// Package main writes the OpenAPI document for the prayerline API.
// Routes are registered against stub handlers, so no database, payment
// gateway, or language model is needed.
//
// Usage:
//
//	go run ./cmd/prayerline-openapi > openapi.json
//	go run ./cmd/prayerline-openapi -yaml > openapi.yaml
//	go run ./cmd/prayerline-openapi -output openapi.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/prayerline/internal/http/routes"
	"github.com/jmylchreest/prayerline/internal/version"
)

func main() {
	outputFile := flag.String("output", "", "Output file path (default: stdout)")
	outputYAML := flag.Bool("yaml", false, "Output as YAML instead of JSON")
	baseURL := flag.String("base-url", "http://localhost:8080", "Base URL for the API server")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().Short())
		return
	}

	router := chi.NewRouter()
	api := humachi.New(router, routes.NewHumaConfig(*baseURL))
	routes.Register(api, routes.StubHandlers())

	doc := api.OpenAPI()

	var data []byte
	var err error
	if *outputYAML {
		data, err = doc.YAML()
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshaling OpenAPI document: %v\n", err)
		os.Exit(1)
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "error writing to file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "OpenAPI document written to %s\n", *outputFile)
	} else {
		fmt.Print(string(data))
	}
}
