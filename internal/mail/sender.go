// Package mail は検証コードのメール送信を提供する。
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
)

// Sender は検証コードメールの送信インターフェース。
type Sender interface {
	// SendVerificationCode は検証コードを指定アドレスへ送信する。
	SendVerificationCode(ctx context.Context, email, code string) error
}

// SMTPSender はSMTP経由でメールを送信するSender実装。
type SMTPSender struct {
	addr     string
	from     string
	username string
	password string
	host     string
}

// NewSMTPSender はSMTPSenderを生成する。
// addrは"host:port"形式、hostは認証に使用するホスト名を指定する。
func NewSMTPSender(addr, host, from, username, password string) *SMTPSender {
	return &SMTPSender{
		addr:     addr,
		from:     from,
		username: username,
		password: password,
		host:     host,
	}
}

// SendVerificationCode は検証コードをSMTPで送信する。
func (s *SMTPSender) SendVerificationCode(ctx context.Context, email, code string) error {
	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Verify your email address\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n"+
			"Your verification code is: %s\r\n\r\nThis code expires in 10 minutes.\r\n",
		s.from, email, code,
	))

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if err := smtp.SendMail(s.addr, auth, s.from, []string{email}, msg); err != nil {
		return fmt.Errorf("failed to send verification mail: %w", err)
	}
	return nil
}

// LogSender は実際の送信を行わず、検証コードをログに出力するSender実装。
// SMTPが未設定の開発環境で使用する。
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender はLogSenderを生成する。
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendVerificationCode は検証コードをログに出力する。
func (s *LogSender) SendVerificationCode(ctx context.Context, email, code string) error {
	s.logger.Info("検証コードを発行しました（メール送信は無効）",
		slog.String("email", email),
		slog.String("code", code),
	)
	return nil
}

// compile-time interface check
var _ Sender = (*SMTPSender)(nil)
var _ Sender = (*LogSender)(nil)
