// Package mailer はSMTPによるメール送信機能を提供する。
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
)

// EmailSender はメール送信のインターフェースを定義する。
type EmailSender interface {
	// Send はHTMLメールを1通送信する。
	// コンテキストの期限は接続の読み書き期限として適用される。
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender はimplicit TLS（ポート465想定）でSMTPサーバーに接続する
// EmailSenderの実装。
type SMTPSender struct {
	host     string
	port     string
	username string
	password string
	from     string
}

// NewSMTPSender はSMTPSenderの新しいインスタンスを生成する。
// fromが空の場合はusernameを差出人として使用する。
func NewSMTPSender(host, port, username, password, from string) *SMTPSender {
	if from == "" {
		from = username
	}
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// Send はHTMLメールを1通送信する。
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := []byte(
		fmt.Sprintf("From: %s\r\n", s.from) +
			fmt.Sprintf("To: %s\r\n", to) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			htmlBody,
	)

	serverAddr := net.JoinHostPort(s.host, s.port)

	// implicit TLSで接続する
	dialer := &net.Dialer{}
	tlsConfig := &tls.Config{
		ServerName: s.host,
	}
	conn, err := tls.DialWithDialer(dialer, "tcp", serverAddr, tlsConfig)
	if err != nil {
		return fmt.Errorf("SMTPサーバーへの接続に失敗しました: %w", err)
	}
	defer conn.Close()

	// コンテキストの期限を接続の読み書き期限として適用する
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("接続期限の設定に失敗しました: %w", err)
		}
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("SMTPクライアントの作成に失敗しました: %w", err)
	}
	defer client.Quit()

	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP認証に失敗しました: %w", err)
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("差出人の設定に失敗しました: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("宛先の設定に失敗しました: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("メッセージ送信の開始に失敗しました: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("メッセージの書き込みに失敗しました: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("メッセージ送信の完了に失敗しました: %w", err)
	}

	return nil
}

// compile-time interface check
var _ EmailSender = (*SMTPSender)(nil)
