package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from stdin
func NewWizard() *Wizard {
	return NewWizardWithIO(os.Stdin, os.Stdout)
}

// NewWizardWithIO creates a wizard over arbitrary streams
func NewWizardWithIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "=== Toolserver Configuration Wizard ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	validator := NewValidator()

	// Object store
	fmt.Fprintln(w.out, "Script store:")
	for {
		kind, err := w.ask("Store kind (s3/local)", cfg.Store.Kind)
		if err != nil {
			return nil, err
		}
		if kind != StoreS3 && kind != StoreLocal {
			fmt.Fprintf(w.out, "Error: unknown store kind %q\n", kind)
			continue
		}
		cfg.Store.Kind = kind
		break
	}

	if cfg.Store.Kind == StoreS3 {
		for {
			bucket, err := w.ask("Bucket", "")
			if err != nil {
				return nil, err
			}
			if bucket == "" {
				fmt.Fprintln(w.out, "Error: bucket is required for the s3 store")
				continue
			}
			cfg.Store.Bucket = bucket
			break
		}

		region, err := w.ask("Region", cfg.Store.Region)
		if err != nil {
			return nil, err
		}
		cfg.Store.Region = region

		endpoint, err := w.ask("Endpoint override (press Enter to skip)", "")
		if err != nil {
			return nil, err
		}
		cfg.Store.Endpoint = endpoint
		cfg.Store.UsePathStyle = endpoint != ""
	} else {
		for {
			dir, err := w.ask("Scripts directory", "")
			if err != nil {
				return nil, err
			}
			if dir == "" {
				fmt.Fprintln(w.out, "Error: a directory is required for the local store")
				continue
			}
			cfg.Store.LocalDir = dir
			break
		}

		watch, err := w.ask("Watch the directory for changes? (y/n)", "y")
		if err != nil {
			return nil, err
		}
		cfg.Store.Watch = strings.EqualFold(watch, "y")
	}

	prefix, err := w.ask("Key prefix", cfg.Store.Prefix)
	if err != nil {
		return nil, err
	}
	cfg.Store.Prefix = prefix

	fmt.Fprintln(w.out)

	// Server
	fmt.Fprintln(w.out, "Server:")
	for {
		raw, err := w.ask("Port", strconv.Itoa(cfg.Server.Port))
		if err != nil {
			return nil, err
		}
		port, convErr := strconv.Atoi(raw)
		if convErr == nil {
			convErr = validator.ValidatePort(port)
		}
		if convErr != nil {
			fmt.Fprintf(w.out, "Error: %v\n", convErr)
			continue
		}
		cfg.Server.Port = port
		break
	}

	for {
		secret, err := w.ask("Token secret, hex encoded (press Enter to skip)", "")
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateSecret(secret, false); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Auth.SecretHex = secret
		break
	}

	fmt.Fprintln(w.out)

	// Log Level
	fmt.Fprintln(w.out, "Logging:")
	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
	} else {
		cfg.Logging.Level = level
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

// ask prints a prompt and returns the answer, or def for an empty line.
func (w *Wizard) ask(prompt, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}

	answer, err := w.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
