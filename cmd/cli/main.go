// Command barforgectl is a CLI client for the Barforge module registry.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// ---- config/token store ----

type tokenFile struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "barforge")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "barforge")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{Token: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.Token == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid session (run login-token)")
	}
	return tf.Token, nil
}

func clearToken() error {
	if err := os.Remove(tokenPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func loadTLS(caPath string, insecure bool) (credentials.TransportCredentials, error) {
	if insecure {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

type globals struct {
	addr      string
	caPath    string
	insecure  bool
	plaintext bool
}

func dial(ctx context.Context, g globals, bearer string) (*grpc.ClientConn, error) {
	var creds credentials.TransportCredentials
	if g.plaintext {
		creds = insecure.NewCredentials()
	} else {
		var err error
		if creds, err = loadTLS(g.caPath, g.insecure); err != nil {
			return nil, err
		}
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !g.plaintext}))
	}
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	return grpc.DialContext(ctx, g.addr, opts...)
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `barforgectl
Usage:
  barforgectl -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [args]

Session:
  login-token -token <token> -expires <RFC3339>   (token from /oauth/callback)
  logout
  whoami

Discovery:
  categories
  featured
  popular    [-limit n]
  recent     [-limit n]
  search     [-q text] [-category id] [-limit n] [-offset n]
  show       -m <uuid>
  versions   -m <uuid>
  reviews    -m <uuid> [-limit n] [-offset n]
  download   -m <uuid> -v <version>
  author     -u <username>

Authoring:
  submit     -file <draft.json|->
  mine
  publish    -m <uuid> -v <version> -key <package key> [-changelog file]
  review     -m <uuid> -rating 1..5 [-title t] [-body b]
  unlist     -m <uuid>
  relist     -m <uuid>

Moderation:
  pending    [-limit n] [-offset n]
  approve    -id <submission>
  reject     -id <submission> [-reason text]
  feature    -m <uuid> -pos n | -m <uuid> -clear
  role       -user <id> -role user|moderator|admin
  verify     -user <id> [-off]
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses global flags and dispatches the subcommand.
func main() {
	// global flags
	var g globals
	flag.StringVar(&g.addr, "addr", "localhost:8443", "server addr")
	flag.StringVar(&g.caPath, "cacert", "", "CA cert (PEM)")
	flag.BoolVar(&g.insecure, "insecure", false, "skip cert verify (dev)")
	flag.BoolVar(&g.plaintext, "plaintext", false, "no TLS (dev server without certificates)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &app{
		out:  os.Stdout,
		dial: func(ctx context.Context, bearer string) (*grpc.ClientConn, error) { return dial(ctx, g, bearer) },
	}
	err := a.run(ctx, flag.Arg(0), flag.Args()[1:])
	switch {
	case errors.Is(err, errUnknownCommand):
		usage()
	case err != nil:
		fail(err)
	}
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
