// Command decrypt prints the activity records of a research export in
// plaintext, using the private key matching the server's public key.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

func main() {
	keyPath := flag.String("key", "", "path to the RSA private key (PEM)")
	exportPath := flag.String("in", "-", "research export JSON, - for stdin")
	flag.Parse()

	if *keyPath == "" {
		fmt.Fprintln(os.Stderr, "usage: decrypt -key private.pem [-in export.json]")
		os.Exit(2)
	}
	pemBytes, err := os.ReadFile(*keyPath)
	if err != nil {
		log.WithError(err).Fatal("read private key")
	}
	priv, err := services.ParsePrivateKeyPEM(string(pemBytes))
	if err != nil {
		log.WithError(err).Fatal("parse private key")
	}

	var in io.Reader = os.Stdin
	if *exportPath != "-" {
		f, err := os.Open(*exportPath)
		if err != nil {
			log.WithError(err).Fatal("open export")
		}
		defer f.Close()
		in = f
	}

	out, err := decryptExport(in, priv)
	if err != nil {
		log.WithError(err).Fatal("decrypt export")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.WithError(err).Fatal("write output")
	}
}
