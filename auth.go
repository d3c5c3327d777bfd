package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pathakanu/impact/internal/display"
	"github.com/pathakanu/impact/internal/gmail"
	"github.com/spf13/cobra"
)

var authEnvFile string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize Gmail access and obtain a refresh token",
	Long: `Walk through Google's OAuth consent flow once to obtain the refresh token
the daemon uses to send and read mail.

Client ID and secret come from GMAIL_CLIENT_ID / GMAIL_CLIENT_SECRET or are
prompted for. With --env-file the resulting credentials are written back to
that file.`,
	Example: `  impact auth
  impact auth --env-file .env`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()

		creds := gmail.Credentials{
			ClientID:     cfg.GmailClientID,
			ClientSecret: cfg.GmailClientSecret,
			RedirectURI:  cfg.GmailRedirectURI,
		}
		var err error
		if creds.ClientID == "" {
			if creds.ClientID, err = prompt(in, out, "Enter Client ID: "); err != nil {
				return err
			}
		}
		if creds.ClientSecret == "" {
			if creds.ClientSecret, err = prompt(in, out, "Enter Client Secret: "); err != nil {
				return err
			}
		}

		display.Header(out, "Step 1: authorize this app")
		fmt.Fprintln(out, "Open this URL in your browser:")
		fmt.Fprintln(out)
		fmt.Fprintln(out, gmail.AuthCodeURL(creds, "impact"))
		fmt.Fprintln(out)
		fmt.Fprintln(out, display.Dim.Render("The redirect page may show an error. Copy the entire URL from the address bar."))

		redirect, err := prompt(in, out, "Paste the redirect URL or code: ")
		if err != nil {
			return err
		}
		code, err := gmail.CodeFromRedirect(redirect)
		if err != nil {
			return err
		}

		refreshToken, err := gmail.Exchange(cmd.Context(), creds, code)
		if err != nil {
			return err
		}
		display.SuccessMsg(out, "got refresh token")

		values := map[string]string{
			"GMAIL_CLIENT_ID":     creds.ClientID,
			"GMAIL_CLIENT_SECRET": creds.ClientSecret,
			"GMAIL_REDIRECT_URI":  creds.RedirectURI,
			"GMAIL_REFRESH_TOKEN": refreshToken,
		}

		if authEnvFile == "" {
			display.Header(out, "Step 2: add these to your .env file")
			for _, key := range []string{"GMAIL_CLIENT_ID", "GMAIL_CLIENT_SECRET", "GMAIL_REDIRECT_URI", "GMAIL_REFRESH_TOKEN"} {
				fmt.Fprintf(out, "%s=%s\n", key, values[key])
			}
			return nil
		}

		if err := updateEnvFile(authEnvFile, values); err != nil {
			return err
		}
		display.SuccessMsg(out, "updated %s", authEnvFile)
		return nil
	},
}

func prompt(in *bufio.Reader, out io.Writer, question string) (string, error) {
	fmt.Fprint(out, question)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// updateEnvFile merges values into the dotenv file at path, creating it when
// it does not exist. Unrelated keys are preserved.
func updateEnvFile(path string, values map[string]string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", path, err)
		}
		env = make(map[string]string, len(values))
	}
	for k, v := range values {
		env[k] = v
	}
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func init() {
	authCmd.Flags().StringVar(&authEnvFile, "env-file", "", "Write the credentials into this dotenv file")
	rootCmd.AddCommand(authCmd)
}
