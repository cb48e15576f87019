package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/eringen/pagekit"
	"github.com/eringen/pagekit/client"
)

// remoteFlags are shared by every command that talks to a running server.
type remoteFlags struct {
	server string
	token  string
}

func (f *remoteFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.server, "server",
		pagekit.EnvOr("PAGEKIT_SERVER", "http://localhost:5001/api"), "API base URL")
	cmd.PersistentFlags().StringVar(&f.token, "token",
		pagekit.EnvOr("PAGEKIT_TOKEN", ""), "bearer token from 'pagekit login'")
}

func (f *remoteFlags) client() *client.Client {
	return client.New(f.server)
}

func (f *remoteFlags) session() (client.Session, error) {
	if f.token == "" {
		return client.Session{}, errors.New("no token: pass --token or set PAGEKIT_TOKEN (see 'pagekit login')")
	}
	return client.Session{Token: f.token}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLoginCmd() *cobra.Command {
	var rf remoteFlags
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			s, err := rf.client().Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Token)
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVarP(&username, "username", "u", pagekit.EnvOr("ADMIN_USERNAME", ""), "admin username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "admin password (default $ADMIN_PASSWORD)")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var rf remoteFlags
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that a token is still valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rf.session()
			if err != nil {
				return err
			}
			resp, err := rf.client().Verify(cmd.Context(), s)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	rf.register(cmd)
	return cmd
}

func newHealthCmd() *cobra.Command {
	var rf remoteFlags
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := rf.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	rf.register(cmd)
	return cmd
}

func newImagesCmd() *cobra.Command {
	var rf remoteFlags
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Manage uploaded service images",
	}
	rf.register(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List files in the upload directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rf.session()
			if err != nil {
				return err
			}
			images, err := rf.client().ListImages(cmd.Context(), s)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), images)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "upload <file>",
		Short: "Upload and compress an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rf.session()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			resp, err := rf.client().UploadImage(cmd.Context(), s, args[0], "", f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <filename>",
		Short: "Delete a file from the upload directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rf.session()
			if err != nil {
				return err
			}
			if err := rf.client().DeleteImage(cmd.Context(), s, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func newPageCmd() *cobra.Command {
	var rf remoteFlags
	cmd := &cobra.Command{
		Use:   "page",
		Short: "Read or replace the page data document",
	}
	rf.register(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the page data document",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := rf.client().GetPageData(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "save <file.json|->",
		Short: "Replace the page data document from a JSON file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rf.session()
			if err != nil {
				return err
			}
			var raw []byte
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			if !json.Valid(raw) {
				return fmt.Errorf("%s is not valid JSON", args[0])
			}
			resp, err := rf.client().SavePageData(cmd.Context(), s, json.RawMessage(raw))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Data)
		},
	})

	return cmd
}
