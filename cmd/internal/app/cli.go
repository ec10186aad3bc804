package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"worksite/cmd/security/password"
)

// readPassword is swapped in tests.
var readPassword = term.ReadPassword

var errPasswordMismatch = errors.New("passwords do not match")

// hashPassword prompts twice on stderr and prints the PHC hash to out.
// The configured password policy applies.
func hashPassword(out, prompt io.Writer) error {
	hasher, err := password.FromEnv()
	if err != nil {
		return err
	}

	pw, err := promptPassword(prompt, "Password: ")
	if err != nil {
		return err
	}
	again, err := promptPassword(prompt, "Repeat password: ")
	if err != nil {
		return err
	}
	if pw != again {
		return errPasswordMismatch
	}

	hash, err := hasher.Hash(pw)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

func promptPassword(prompt io.Writer, label string) (string, error) {
	_, _ = io.WriteString(prompt, label)
	b, err := readPassword(int(os.Stdin.Fd())) // #nosec G115 -- file descriptors fit in int.
	_, _ = io.WriteString(prompt, "\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
