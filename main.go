package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bgentry/speakeasy"
	"github.com/urfave/cli/v2"

	"github.com/curlew-mail/curlew/internal/config"
	errs "github.com/curlew-mail/curlew/internal/errors"
	"github.com/curlew-mail/curlew/internal/logger"
	"github.com/curlew-mail/curlew/internal/models"
	"github.com/curlew-mail/curlew/internal/secret"
	"github.com/curlew-mail/curlew/internal/utils"
	"github.com/curlew-mail/curlew/services"
	"github.com/curlew-mail/curlew/services/codec"
	"github.com/curlew-mail/curlew/services/mailbox"
)

func main() {
	cfg, err := config.InitConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config initialization failed: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewAppLogger(&cfg.Logger)
	log.InitLogger()

	app := &cli.App{
		Name:  "curlew",
		Usage: "a small mail client for a single account",
		Commands: []*cli.Command{
			setupCommand(cfg, log),
			sendCommand(cfg, log),
			receiveCommand(cfg, log),
			foldersCommand(cfg, log),
			configCommand(cfg, log),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorf("%v", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy onto distinct process exit codes so
// scripts can tell an auth failure from a network one.
func exitCode(err error) int {
	switch errs.Kind(err) {
	case "auth":
		return 3
	case "tls":
		return 4
	case "connection":
		return 5
	case "delivery":
		return 6
	case "crypto", "permission":
		return 7
	default:
		return 1
	}
}

func loadAccount(cfg *config.AppConfig) (*models.Account, error) {
	account, err := config.LoadAccount(cfg.ConfigDir)
	if err != nil {
		return nil, err
	}

	store := secret.NewStore(cfg.ConfigDir)
	password, err := store.Decrypt(account.Password)
	if err != nil {
		return nil, err
	}
	account.Password = password
	return account, nil
}

func setupCommand(cfg *config.AppConfig, log logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "configure the account, prompting for anything not given as a flag",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "account address"},
			&cli.StringFlag{Name: "name", Usage: "display name"},
			&cli.StringFlag{Name: "protocol", Usage: "receive protocol, imap or pop3"},
			&cli.StringFlag{Name: "password", Usage: "account password; prompted without echo when omitted"},
			&cli.StringFlag{Name: "smtp-host", Usage: "smtp server host"},
			&cli.IntFlag{Name: "smtp-port", Usage: "smtp server port"},
			&cli.BoolFlag{Name: "starttls", Usage: "upgrade the smtp connection with STARTTLS", Value: true},
			&cli.StringFlag{Name: "imap-host", Usage: "imap server host"},
			&cli.IntFlag{Name: "imap-port", Usage: "imap server port"},
			&cli.StringFlag{Name: "pop3-host", Usage: "pop3 server host"},
			&cli.IntFlag{Name: "pop3-port", Usage: "pop3 server port"},
		},
		Action: func(c *cli.Context) error {
			reader := bufio.NewReader(os.Stdin)
			account := &models.Account{}

			account.Email = stringOrPrompt(c, reader, "email", "Email address")
			account.Name = c.String("name")
			if account.Name == "" {
				account.Name = prompt(reader, "Display name (blank to derive from address)")
			}
			account.Signature = prompt(reader, "Signature (blank for none)")

			proto, err := models.ParseProtocol(stringOrPrompt(c, reader, "protocol", "Receive protocol (imap/pop3)"))
			if err != nil {
				return err
			}
			account.RecvProtocol = proto

			account.SMTP.Host = stringOrPrompt(c, reader, "smtp-host", "SMTP host")
			account.SMTP.Port = intOrPrompt(c, reader, "smtp-port", "SMTP port", 587)
			if c.IsSet("starttls") {
				account.SMTP.StartTLS = c.Bool("starttls")
			} else {
				account.SMTP.StartTLS = promptBool(reader, "SMTP STARTTLS", true)
			}
			account.SMTP.VerifySSL = promptBool(reader, "Verify TLS certificates", true)

			switch proto {
			case models.ProtocolIMAP:
				account.IMAP.Host = stringOrPrompt(c, reader, "imap-host", "IMAP host")
				account.IMAP.Port = intOrPrompt(c, reader, "imap-port", "IMAP port", 993)
				account.IMAP.SSL = promptBool(reader, "IMAP implicit TLS", true)
			case models.ProtocolPOP3:
				account.POP3.Host = stringOrPrompt(c, reader, "pop3-host", "POP3 host")
				account.POP3.Port = intOrPrompt(c, reader, "pop3-port", "POP3 port", 995)
				account.POP3.SSL = promptBool(reader, "POP3 implicit TLS", true)
			}

			password := c.String("password")
			if !c.IsSet("password") {
				var err error
				password, err = speakeasy.Ask("Password (blank to be prompted per run): ")
				if err != nil {
					return err
				}
			}

			store := secret.NewStore(cfg.ConfigDir)
			encrypted, err := store.Encrypt(password)
			if err != nil {
				return err
			}
			account.Password = encrypted

			if err := account.Validate(); err != nil {
				return err
			}
			if err := config.SaveAccount(cfg.ConfigDir, account); err != nil {
				return err
			}

			fmt.Printf("Configuration written to %s\n", config.AccountPath(cfg.ConfigDir))
			return nil
		},
	}
}

func sendCommand(cfg *config.AppConfig, log logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "compose and send a message",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "to", Usage: "recipient address, repeatable", Required: true},
			&cli.StringSliceFlag{Name: "cc", Usage: "carbon copy address, repeatable"},
			&cli.StringFlag{Name: "subject", Usage: "message subject"},
			&cli.StringFlag{Name: "body", Usage: "message body; reads stdin when omitted"},
			&cli.StringFlag{Name: "file", Usage: "read the message body from a file"},
			&cli.StringSliceFlag{Name: "attach", Usage: "file to attach, repeatable"},
		},
		Action: func(c *cli.Context) error {
			account, err := loadAccount(cfg)
			if err != nil {
				return err
			}
			if err := ensurePassword(account); err != nil {
				return err
			}

			body := c.String("body")
			if body == "" && c.String("file") != "" {
				data, err := os.ReadFile(c.String("file"))
				if err != nil {
					return err
				}
				body = string(data)
			}
			if body == "" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return err
				}
				body = string(data)
			}
			if account.Signature != "" {
				body = body + "\n\n-- \n" + account.Signature + "\n"
			}

			var attachments []models.Attachment
			for _, path := range c.StringSlice("attach") {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				filename := filepath.Base(path)
				attachments = append(attachments, models.Attachment{
					Filename:    filename,
					ContentType: utils.DetectContentType(filename),
					Data:        data,
				})
			}

			raw, err := codec.Build(codec.BuildParams{
				FromAddress: account.Email,
				FromName:    account.DisplayName(),
				To:          c.StringSlice("to"),
				Cc:          c.StringSlice("cc"),
				Subject:     c.String("subject"),
				Body:        body,
				Attachments: attachments,
			})
			if err != nil {
				return err
			}

			sender := services.NewSender(account, cfg.NetworkTimeout, log)
			recipients := append(c.StringSlice("to"), c.StringSlice("cc")...)
			if err := sender.Send(account.Email, recipients, raw); err != nil {
				return err
			}

			fmt.Printf("Message sent to %s\n", strings.Join(recipients, ", "))
			return nil
		},
	}
}

func receiveCommand(cfg *config.AppConfig, log logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "receive",
		Usage: "list messages, show one, or change its state",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "folder", Usage: "folder to open", Value: "INBOX"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"count"}, Usage: "maximum messages to list", Value: 10},
			&cli.StringFlag{Name: "search", Usage: "filter by sender or subject substring"},
			&cli.StringFlag{Name: "show", Usage: "message id to display in full"},
			&cli.StringFlag{Name: "thread", Usage: "message id whose conversation to list"},
			&cli.StringFlag{Name: "mark-read", Usage: "message id to mark read"},
			&cli.StringFlag{Name: "mark-unread", Usage: "message id to mark unread"},
			&cli.StringFlag{Name: "delete", Usage: "message id to delete"},
		},
		Action: func(c *cli.Context) error {
			account, err := loadAccount(cfg)
			if err != nil {
				return err
			}
			if err := ensurePassword(account); err != nil {
				return err
			}

			session, err := services.OpenSession(account, cfg.NetworkTimeout, log)
			if err != nil {
				return err
			}
			model := mailbox.NewModel(session, log)
			defer model.Close()

			model.SetLimit(c.Int("limit"))
			folder := c.String("folder")
			if err := model.Refresh(folder); err != nil {
				if !errors.Is(err, errs.ErrNotFound) || strings.EqualFold(folder, "INBOX") {
					return err
				}
				fmt.Fprintf(os.Stderr, "Folder %s not available, falling back to INBOX.\n", folder)
				if err := model.Refresh("INBOX"); err != nil {
					return err
				}
			}

			switch {
			case c.String("show") != "":
				return showMessage(model, c.String("show"))
			case c.String("thread") != "":
				for _, msg := range model.Conversation(c.String("thread")) {
					fmt.Printf("%6s  %s  %s\n", msg.ID, truncate(msg.Sender(), 30), msg.Subject)
				}
				return nil
			case c.String("mark-read") != "":
				return model.MarkRead(c.String("mark-read"))
			case c.String("mark-unread") != "":
				return model.MarkUnread(c.String("mark-unread"))
			case c.String("delete") != "":
				return model.Delete(c.String("delete"))
			}

			messages := model.Search(c.String("search"))
			if len(messages) == 0 {
				fmt.Println("No messages.")
				return nil
			}
			for _, msg := range messages {
				flag := " "
				if !msg.Seen {
					flag = "N"
				}
				date := ""
				if !msg.Date.IsZero() {
					date = msg.Date.Format("2006-01-02 15:04")
				}
				fmt.Printf("%s %6s  %-16s  %-30s  %s\n", flag, msg.ID, date, truncate(msg.Sender(), 30), msg.Subject)
			}
			return nil
		},
	}
}

func foldersCommand(cfg *config.AppConfig, log logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "folders",
		Usage: "list folders on the server",
		Action: func(c *cli.Context) error {
			account, err := loadAccount(cfg)
			if err != nil {
				return err
			}
			if err := ensurePassword(account); err != nil {
				return err
			}

			session, err := services.OpenSession(account, cfg.NetworkTimeout, log)
			if err != nil {
				return err
			}
			defer session.Close()

			if !session.Capabilities().Folders {
				fmt.Println("This account retrieves mail over POP3, which has no folders; only the implicit INBOX exists.")
			}

			folders, err := session.Folders()
			if err != nil {
				return err
			}
			for _, f := range folders {
				marker := ""
				if !f.Selectable {
					marker = " (not selectable)"
				}
				fmt.Printf("%s%s\n", f.Name, marker)
			}
			return nil
		},
	}
}

func configCommand(cfg *config.AppConfig, log logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "print the stored configuration without secrets",
		Action: func(c *cli.Context) error {
			accountPath := config.AccountPath(cfg.ConfigDir)
			keyPath := secret.NewStore(cfg.ConfigDir).KeyPath()
			fmt.Printf("Config file: %s\n", accountPath)
			fmt.Printf("Key file:    %s\n", keyPath)

			account, err := config.LoadAccount(cfg.ConfigDir)
			if err != nil {
				fmt.Println("No account configured yet.")
				return nil
			}
			account.Password = "<encrypted>"

			out, err := json.MarshalIndent(account, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func showMessage(model *mailbox.Model, id string) error {
	msg, err := model.Fetch(id)
	if err != nil {
		return err
	}

	fmt.Printf("From: %s\n", msg.Sender())
	fmt.Printf("To: %s\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Printf("Cc: %s\n", strings.Join(msg.Cc, ", "))
	}
	fmt.Printf("Subject: %s\n", msg.Subject)
	if !msg.Date.IsZero() {
		fmt.Printf("Date: %s\n", msg.Date.Format("2006-01-02 15:04:05 -0700"))
	}
	fmt.Println()
	fmt.Println(msg.BodyText)
	if len(msg.Attachments) > 0 {
		fmt.Println()
		for _, att := range msg.Attachments {
			fmt.Printf("[attachment] %s (%s, %d bytes)\n", att.Filename, att.ContentType, len(att.Data))
		}
	}
	return nil
}

// ensurePassword prompts when setup stored an empty password.
func ensurePassword(account *models.Account) error {
	if account.Password != "" {
		return nil
	}
	password, err := speakeasy.Ask(fmt.Sprintf("Password for %s: ", account.Email))
	if err != nil {
		return err
	}
	account.Password = password
	return nil
}

func stringOrPrompt(c *cli.Context, reader *bufio.Reader, flag, label string) string {
	if v := c.String(flag); v != "" {
		return v
	}
	return prompt(reader, label)
}

func intOrPrompt(c *cli.Context, reader *bufio.Reader, flag, label string, fallback int) int {
	if v := c.Int(flag); v > 0 {
		return v
	}
	return promptInt(reader, label, fallback)
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func promptInt(reader *bufio.Reader, label string, fallback int) int {
	raw := prompt(reader, fmt.Sprintf("%s [%d]", label, fallback))
	if raw == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil || n <= 0 {
		return fallback
	}
	return n
}

func promptBool(reader *bufio.Reader, label string, fallback bool) bool {
	def := "y"
	if !fallback {
		def = "n"
	}
	raw := strings.ToLower(prompt(reader, fmt.Sprintf("%s (y/n) [%s]", label, def)))
	switch raw {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return fallback
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
