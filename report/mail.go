// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"

	mail "gopkg.in/gomail.v2"
)

// Mailer sends results reports by mail.
type Mailer struct {
	Server   string
	Port     int
	User     string
	Password string
	To       []string

	send func(d *mail.Dialer, msg ...*mail.Message) error
}

// MailerFromEnv creates a mailer from the MAIL_USERNAME, MAIL_PASSWORD,
// MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment variables.
func MailerFromEnv() *Mailer {
	return &Mailer{
		Server:   os.Getenv("MAIL_SERVER"),
		Port:     atoi(os.Getenv("MAIL_PORT")),
		User:     os.Getenv("MAIL_USERNAME"),
		Password: os.Getenv("MAIL_PASSWORD"),
		To:       targets(os.Getenv("MAIL_TGTS")),
	}
}

// Valid returns an error if the mailer is missing credentials.
func (m *Mailer) Valid() error {
	if m.User == "" || m.Password == "" ||
		m.Server == "" || m.Port == 0 || len(m.To) == 0 {
		return fmt.Errorf("report: missing mail credentials")
	}
	return nil
}

// Send mails the results report, with the provided files attached.
func (m *Mailer) Send(res Results, files ...string) error {
	err := m.Valid()
	if err != nil {
		return err
	}

	msg, err := m.message(res, files...)
	if err != nil {
		return err
	}

	dial := mail.NewDialer(m.Server, m.Port, m.User, m.Password)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}

	send := m.send
	if send == nil {
		send = (*mail.Dialer).DialAndSend
	}

	err = send(dial, msg)
	if err != nil {
		return fmt.Errorf("report: could not send mail: %w", err)
	}
	return nil
}

func (m *Mailer) message(res Results, files ...string) (*mail.Message, error) {
	body := new(strings.Builder)
	_, err := res.WriteTo(body)
	if err != nil {
		return nil, fmt.Errorf("report: could not format results: %w", err)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.User)
	msg.SetHeader("Bcc", m.To...)
	msg.SetHeader("Subject", fmt.Sprintf(
		"[usblag] %s %s: %.3f ms (n=%d)",
		res.Device.ID(), res.Device.Product, res.Stats.Mean, res.Stats.N,
	))
	msg.SetBody("text/plain", body.String())
	for _, fname := range files {
		msg.Attach(fname)
	}
	return msg, nil
}

func targets(s string) []string {
	var tgts []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		tgts = append(tgts, v)
	}
	return tgts
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
