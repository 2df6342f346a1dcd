// Command hashpassword produces a stored password hash, for seeding users
// directly in the database or checking a hash by hand.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tendant/attendance-idm/pkg/password"
)

func main() {
	plaintext := flag.String("password", "", "Password to hash; read from stdin when empty")
	verify := flag.String("verify", "", "Existing hash to check the password against instead of hashing")
	algo := flag.String("algo", "argon2id", "Hash algorithm for new digests: argon2id or bcrypt")
	flag.Parse()

	pw := *plaintext
	if pw == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(os.Stderr, "Error: no password given: %v\n", err)
			os.Exit(1)
		}
		pw = strings.TrimRight(line, "\r\n")
	}

	var hasher password.PasswordHasher
	switch *algo {
	case "argon2id":
		hasher = password.NewMultiHasher(nil)
	case "bcrypt":
		hasher = password.NewBcryptHasher()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown algorithm: %s\n", *algo)
		os.Exit(1)
	}

	if *verify != "" {
		ok, err := password.NewMultiHasher(nil).Verify(pw, *verify)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Println("mismatch")
			os.Exit(2)
		}
		fmt.Println("match")
		return
	}

	hash, err := hasher.Hash(pw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
