package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/groundworks/groundpool/internal/vault"
)

func cmdKeys(args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: groundpool keys <list|set|delete> [scope]")
		os.Exit(1)
	}

	v := vault.New()

	switch args[0] {
	case "list":
		scopes, err := v.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error listing keys: %v\n", err)
			os.Exit(1)
		}
		if len(scopes) == 0 {
			fmt.Println("No API keys stored")
			return
		}
		for _, s := range scopes {
			fmt.Printf("  %s: ****\n", s)
		}

	case "set":
		scope := "upstream"
		if len(args) > 1 {
			scope = strings.ToLower(args[1])
		}
		fmt.Printf("Enter API key for %s: ", scope)
		key, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading key: %v\n", err)
			os.Exit(1)
		}
		if err := v.Set(scope, string(key)); err != nil {
			fmt.Fprintf(os.Stderr, "error storing key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Key for %s stored successfully\n", scope)

	case "delete":
		scope := "upstream"
		if len(args) > 1 {
			scope = strings.ToLower(args[1])
		}
		if err := v.Delete(scope); err != nil {
			fmt.Fprintf(os.Stderr, "error deleting key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Key for %s deleted\n", scope)

	default:
		fmt.Fprintf(os.Stderr, "unknown keys command: %s\n", args[0])
		os.Exit(1)
	}
}
