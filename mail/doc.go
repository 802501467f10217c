// Package mail provides goRecover.MailSender implementations: an SMTP relay
// sender and a zap-backed sender for development.
package mail
