package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/RunningKuma/matrix-on-vscode/errors"
	"github.com/RunningKuma/matrix-on-vscode/logger"
	"github.com/RunningKuma/matrix-on-vscode/server"
	"github.com/RunningKuma/matrix-on-vscode/site"
	"github.com/RunningKuma/matrix-on-vscode/tree"
)

// withApp runs fn with a fully built app and tears it down afterwards.
func withApp(cmd *cobra.Command, cfgPath string, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// exactArgs is cobra.ExactArgs reporting ErrBadCommandUsage.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return errors.NewError("main", err.Error(), errors.ErrBadCommandUsage)
		}
		return nil
	}
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return nil, errBadID
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newServeCommand(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the course tree over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *cfgPath, func(ctx context.Context, a *app) error {
				ctl, err := a.controller()
				if err != nil {
					return err
				}
				cfg := server.Config{
					Address:         a.cfg.Server.Address,
					AllowedOrigins:  a.cfg.Server.AllowedOrigins,
					ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
				}
				if addr != "" {
					cfg.Address = addr
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return server.New(cfg, ctl, a.client, a.reg, a.log).Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.address")
	return cmd
}

func readPassword(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errIncompleteCreds
	}
	fmt.Fprint(w, "Matrix password: ")
	pwd, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func newLoginCommand(cfgPath *string) *cobra.Command {
	var cookie, username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to Matrix and store the session",
		Long:  "Sign in with an existing session cookie (--cookie) or with a username and password. The password is prompted for when omitted on a terminal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cookie == "" && username == "" {
				return errNoLoginMethod
			}
			if username != "" && password == "" {
				pwd, err := readPassword(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				password = pwd
			}

			return withApp(cmd, *cfgPath, func(ctx context.Context, a *app) error {
				var (
					session string
					name    string
				)
				if cookie != "" {
					res, err := a.client.LoginWithCookie(ctx, cookie)
					if err != nil {
						return err
					}
					// The server may rotate the session; otherwise keep the one given.
					session = res.Cookie()
					if session == "" {
						session = cookie
					}
					name = res.Username()
				} else {
					res, err := a.client.LoginWithCredentials(ctx, username, password)
					if err != nil {
						return err
					}
					session = res.Cookie()
					if session == "" {
						return errNoSession
					}
					name = res.Username()
					if name == "" {
						name = username
					}
				}

				if err := a.store.SetCookie(ctx, session); err != nil {
					return err
				}
				if err := a.store.SetUserStatus(ctx, site.UserStatus{SignedIn: true, Username: name}); err != nil {
					return err
				}
				logger.Infof("Signed in to %s", a.client.BaseURL())
				if name != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "已登录 Matrix：%s\n", name)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "已登录 Matrix")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cookie, "cookie", "", "existing Matrix session cookie")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Matrix username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Matrix password")
	cmd.MarkFlagsMutuallyExclusive("cookie", "username")
	return cmd
}

func newLogoutCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *cfgPath, func(ctx context.Context, a *app) error {
				if err := a.store.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "已退出 Matrix")
				return nil
			})
		},
	}
}

func newStatusCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored sign-in status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *cfgPath, func(ctx context.Context, a *app) error {
				status, err := a.store.UserStatus(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), status)
			})
		},
	}
}

func newCoursesCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "List courses as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *cfgPath, func(ctx context.Context, a *app) error {
				courses, err := a.client.FetchCourses(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), courses)
			})
		},
	}
}

func newAssignmentsCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "assignments COURSE_ID",
		Short: "List the assignments of a course as JSON",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, *cfgPath, func(ctx context.Context, a *app) error {
				assignments, err := a.client.FetchAssignments(ctx, ids[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), assignments)
			})
		},
	}
}

func newAssignmentCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "assignment COURSE_ID ASSIGNMENT_ID",
		Short: "Show one assignment with its statement as JSON",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, *cfgPath, func(ctx context.Context, a *app) error {
				detail, err := a.client.FetchAssignmentDetail(ctx, ids[0], ids[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), detail)
			})
		},
	}
}

func newTreeCommand(cfgPath *string) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the course tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *cfgPath, func(ctx context.Context, a *app) error {
				ctl, err := a.controller()
				if err != nil {
					return err
				}
				printTree(ctx, cmd.OutOrStdout(), ctl, nil, 0, depth)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 4, "maximum depth to expand")
	return cmd
}

// printTree writes the children of node, expanding down to maxDepth levels.
func printTree(ctx context.Context, w io.Writer, ctl *tree.Controller, node tree.Node, level, maxDepth int) {
	if level >= maxDepth {
		return
	}
	for _, child := range ctl.Children(ctx, node) {
		item := ctl.TreeItem(child)
		line := strings.Repeat("  ", level) + item.Label
		if item.Description != "" {
			line += "  (" + item.Description + ")"
		}
		fmt.Fprintln(w, line)
		if item.Collapsible != tree.None {
			printTree(ctx, w, ctl, child, level+1, maxDepth)
		}
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "matrixcollect %s\n", version)
		},
	}
}
