package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/five82/jpdict/internal/app"
	"github.com/five82/jpdict/internal/flatdict"
	"github.com/five82/jpdict/internal/indicator"
	"github.com/five82/jpdict/internal/port"
	"github.com/five82/jpdict/internal/protocol"
	"github.com/five82/jpdict/internal/ui"
)

func newServeCmd(st *cliState) *cobra.Command {
	var showIndicator bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := app.Options{
				Config:     st.cfg,
				ConfigPath: st.configPath,
				Serve:      true,
				Logger:     st.logger,
			}
			if showIndicator {
				opts.Sinks = []indicator.Sink{indicator.NewTerminalSink(cmd.OutOrStdout())}
			}
			a, err := app.New(opts)
			if err != nil {
				return err
			}
			st.logger.Info("jpdict starting",
				"http", st.cfg.HTTPBind,
				"socket", st.cfg.SocketPath,
				"data_dir", st.cfg.DataDir,
			)
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&showIndicator, "indicator", false, "print action button changes to stdout")
	return cmd
}

func newWatchCmd(st *cliState) *cobra.Command {
	var theme string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch database state and trigger updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			client, err := port.Dial(ctx, st.cfg.SocketPath)
			cancel()
			if err != nil {
				return fmt.Errorf("connect to daemon: %w", err)
			}
			defer func() { _ = client.Close() }()

			return ui.Run(ui.Options{Conn: client, ThemeName: theme})
		},
	}
	cmd.Flags().StringVar(&theme, "theme", "", "color theme ("+strings.Join(ui.ThemeNames(), "|")+")")
	return cmd
}

func newSearchCmd(st *cliState) *cobra.Command {
	var (
		dictOption string
		local      bool
	)

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Look up the text under the cursor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if local {
				dict, err := flatdict.Load(st.cfg.DictDir())
				if err != nil {
					return err
				}
				res, err := dict.WordSearch(cmd.Context(), flatdict.WordSearchParams{
					Input:         args[0],
					IncludeRomaji: st.cfg.ShowRomaji,
				})
				if err != nil {
					return err
				}
				if res == nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "no results")
					return nil
				}
				return printJSON(cmd.OutOrStdout(), res)
			}
			return runtimeRequest(cmd, st, protocol.RuntimeRequest{
				Type:       protocol.TypeSearch,
				Text:       args[0],
				DictOption: dictOption,
			})
		},
	}
	cmd.Flags().StringVar(&dictOption, "dict", protocol.DictDefault, "dictionary selection (default|next|kanji)")
	cmd.Flags().BoolVar(&local, "local", false, "search the word dictionary directly without the daemon")
	return cmd
}

func newTranslateCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "translate <text>",
		Short: "Translate a run of text word by word",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runtimeRequest(cmd, st, protocol.RuntimeRequest{
				Type:  protocol.TypeTranslate,
				Title: args[0],
			})
		},
	}
}

func newToggleCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Switch lookups on or off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := post(cmd.Context(), st, "/toggle", nil)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusNoContent {
				return statusError(resp)
			}
			return nil
		},
	}
}

func runtimeRequest(cmd *cobra.Command, st *cliState, req protocol.RuntimeRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := post(cmd.Context(), st, "/runtime", body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if string(bytes.TrimSpace(data)) == "null" {
		fmt.Fprintln(cmd.ErrOrStderr(), "no results")
		return nil
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func post(ctx context.Context, st *cliState, path string, body []byte) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	url := "http://" + st.cfg.HTTPBind + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("contact daemon at %s: %w", st.cfg.HTTPBind, err)
	}
	resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("daemon returned %s: %s", resp.Status, payload.Error)
	}
	return fmt.Errorf("daemon returned %s", resp.Status)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
