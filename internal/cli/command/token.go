package command

import (
	"errors"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokenkeeper/internal/core/domain"
	"github.com/yndnr/tokenkeeper/internal/core/service"
)

// TokenCommand returns the token subcommand group.
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Token administration against the configured store",
		Subcommands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "Issue a token for a subject",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "subject",
						Aliases:  []string{"s"},
						Usage:    "Subject (principal) the token is issued to",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "Token lifetime (default: token.default_ttl)",
					},
				},
				Action: withTokens(tokenIssue),
			},
			{
				Name:      "validate",
				Usage:     "Check a secret and print its subject",
				ArgsUsage: "SECRET",
				Action:    withTokens(tokenValidate),
			},
			{
				Name:      "revoke",
				Usage:     "Revoke a token",
				ArgsUsage: "SECRET",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "purge",
						Usage: "Delete the record now instead of leaving it to the cleaner",
					},
				},
				Action: withTokens(tokenRevoke),
			},
			{
				Name:      "inspect",
				Usage:     "Show the stored record behind a secret",
				ArgsUsage: "SECRET",
				Action:    withTokens(tokenInspect),
			},
		},
	}
}

// withTokens opens the store, runs fn with a token service over it and
// closes the store afterwards.
func withTokens(fn func(*cli.Context, *service.TokenService) error) cli.ActionFunc {
	return func(c *cli.Context) (err error) {
		store, cfg, log, err := openStore(c)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, store.Close()) }()

		return fn(c, service.NewTokenService(store, cfg.TokenServiceConfig(), service.WithLogger(log)))
	}
}

func secretArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit("expected exactly one SECRET argument", 2)
	}
	return c.Args().First(), nil
}

type issueOutput struct {
	TokenID   string    `json:"token_id" yaml:"token_id"`
	Secret    string    `json:"secret" yaml:"secret"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

func (o issueOutput) Rows() [][]string {
	return [][]string{
		{"token_id", o.TokenID},
		{"secret", o.Secret},
		{"expires_at", formatTime(o.ExpiresAt)},
	}
}

func tokenIssue(c *cli.Context, tokens *service.TokenService) error {
	var (
		res *service.IssueResult
		err error
	)
	if ttl := c.Duration("ttl"); ttl != 0 {
		res, err = tokens.Issue(c.Context, c.String("subject"), ttl)
	} else {
		res, err = tokens.IssueDefault(c.Context, c.String("subject"))
	}
	if err != nil {
		return err
	}
	return render(c, issueOutput{
		TokenID:   res.TokenID,
		Secret:    res.SecretValue,
		ExpiresAt: res.ExpiresAt,
	})
}

type validateOutput struct {
	Status    string `json:"status" yaml:"status"`
	SubjectID string `json:"subject_id,omitempty" yaml:"subject_id,omitempty"`
}

func (o validateOutput) Rows() [][]string {
	return [][]string{{"status", o.Status}, {"subject_id", o.SubjectID}}
}

func tokenValidate(c *cli.Context, tokens *service.TokenService) error {
	secret, err := secretArg(c)
	if err != nil {
		return err
	}
	subject, err := tokens.Validate(c.Context, secret)
	status, ok := statusOf(err)
	if !ok {
		return err
	}
	if err := render(c, validateOutput{Status: status, SubjectID: subject}); err != nil {
		return err
	}
	if status != statusValid {
		return cli.Exit("", 1)
	}
	return nil
}

func tokenRevoke(c *cli.Context, tokens *service.TokenService) error {
	secret, err := secretArg(c)
	if err != nil {
		return err
	}
	if c.Bool("purge") {
		err = tokens.RevokeAndPurge(c.Context, secret)
	} else {
		err = tokens.Revoke(c.Context, secret)
	}
	if errors.Is(err, domain.ErrTokenNotFound) {
		return cli.Exit("token not found", 1)
	}
	if err != nil {
		return err
	}
	status := "revoked"
	if c.Bool("purge") {
		status = "purged"
	}
	return render(c, validateOutput{Status: status})
}

type inspectOutput struct {
	Status    string     `json:"status" yaml:"status"`
	TokenID   string     `json:"token_id" yaml:"token_id"`
	SubjectID string     `json:"subject_id" yaml:"subject_id"`
	IssuedAt  time.Time  `json:"issued_at" yaml:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at" yaml:"expires_at"`
	Revoked   bool       `json:"revoked" yaml:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" yaml:"revoked_at,omitempty"`
}

func (o inspectOutput) Rows() [][]string {
	rows := [][]string{
		{"status", o.Status},
		{"token_id", o.TokenID},
		{"subject_id", o.SubjectID},
		{"issued_at", formatTime(o.IssuedAt)},
		{"expires_at", formatTime(o.ExpiresAt)},
		{"revoked", strconv.FormatBool(o.Revoked)},
	}
	if o.RevokedAt != nil {
		rows = append(rows, []string{"revoked_at", formatTime(*o.RevokedAt)})
	}
	return rows
}

func tokenInspect(c *cli.Context, tokens *service.TokenService) error {
	secret, err := secretArg(c)
	if err != nil {
		return err
	}
	tok, err := tokens.Introspect(c.Context, secret)
	if tok == nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return cli.Exit("token not found", 1)
		}
		return err
	}
	status, ok := statusOf(err)
	if !ok {
		return err
	}

	out := inspectOutput{
		Status:    status,
		TokenID:   tok.ID,
		SubjectID: tok.SubjectID,
		IssuedAt:  tok.IssuedAt,
		ExpiresAt: tok.ExpiresAt,
		Revoked:   tok.Revoked,
	}
	if tok.Revoked {
		at := tok.RevokedAt
		out.RevokedAt = &at
	}
	return render(c, out)
}

const (
	statusValid    = "valid"
	statusNotFound = "not_found"
	statusExpired  = "expired"
	statusRevoked  = "revoked"
)

// statusOf maps a validation outcome to its status word. ok is false for
// errors that are not a verdict on the token, such as an unavailable store.
func statusOf(err error) (status string, ok bool) {
	switch {
	case err == nil:
		return statusValid, true
	case errors.Is(err, domain.ErrTokenNotFound):
		return statusNotFound, true
	case errors.Is(err, domain.ErrTokenRevoked):
		return statusRevoked, true
	case errors.Is(err, domain.ErrTokenExpired):
		return statusExpired, true
	default:
		return "", false
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
