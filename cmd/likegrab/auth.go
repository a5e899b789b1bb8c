package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"likegrab/pkg/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored credential profiles",
	Long: `Store, inspect and remove credential profiles.

Profiles are kept in the system keyring when one is available, falling back
to an encrypted file under the user config directory. Secrets read from the
terminal are never echoed.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store credentials in a profile",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		name := "default"
		if len(args) > 0 {
			name = args[0]
		}
		return authLogin(name)
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List stored profiles and which credentials each carries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return authStatus()
	},
}

var authRemoveCmd = &cobra.Command{
	Use:     "remove <profile>",
	Aliases: []string{"rm"},
	Short:   "Delete a stored profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return authRemove(args[0])
	},
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRemoveCmd)
	rootCmd.AddCommand(authCmd)
}

func authLogin(name string) error {
	mgr, err := auth.NewManager()
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("Storing credentials in profile %q. Leave any field blank to skip it.\n\n", name)

	profile := &auth.Profile{Name: name}

	profile.BearerToken, err = promptSecret("Bearer token")
	if err != nil {
		return err
	}

	profile.APIKey = promptLine(reader, "API key")
	if profile.APIKey != "" {
		profile.APISecret, err = promptSecret("API secret")
		if err != nil {
			return err
		}
		profile.AccessToken = promptLine(reader, "Access token")
		profile.AccessSecret, err = promptSecret("Access token secret")
		if err != nil {
			return err
		}
	}

	profile.CookiesPath = promptLine(reader, "Session cookie jar path")
	profile.Browser = promptLine(reader, "Browser for cookie extraction")

	if !profile.HasAnyCredential() {
		return fmt.Errorf("no credentials entered, nothing to store")
	}

	profile.LastModified = time.Now()
	if err := mgr.Store(profile); err != nil {
		return err
	}
	fmt.Printf("\nProfile %q stored.\n", name)
	return nil
}

func authStatus() error {
	mgr, err := auth.NewManager()
	if err != nil {
		return err
	}
	profiles, err := mgr.List()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Println("No stored profiles. Run 'likegrab auth login' to create one.")
		return nil
	}
	for _, p := range profiles {
		var has []string
		if p.BearerToken != "" {
			has = append(has, "bearer")
		}
		if p.APIKey != "" {
			has = append(has, "oauth1")
		}
		if p.CookiesPath != "" {
			has = append(has, "cookies")
		}
		if p.Browser != "" {
			has = append(has, "browser:"+p.Browser)
		}
		fmt.Printf("%-16s %s\n", p.Name, strings.Join(has, ", "))
	}
	return nil
}

func authRemove(name string) error {
	mgr, err := auth.NewManager()
	if err != nil {
		return err
	}
	if err := mgr.Delete(name); err != nil {
		return err
	}
	fmt.Printf("Profile %q removed.\n", name)
	return nil
}

func promptLine(reader *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", label, err)
	}
	return strings.TrimSpace(string(secret)), nil
}
