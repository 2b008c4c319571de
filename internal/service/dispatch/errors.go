package dispatch

import (
	"errors"
	"fmt"

	"github.com/ignite/newsletter/internal/domain"
)

// Visitor-facing outcome messages.
const (
	MsgIssueNotFound      = "Newsletter não encontrada"
	MsgNoIssues           = "Nenhuma newsletter encontrada"
	MsgNotPublished       = "Newsletter ainda não foi publicada"
	MsgLatestNotPublished = "Newsletter mais recente ainda não foi publicada"
	MsgNoSubscribers      = "Nenhum subscriber ativo encontrado"
	MsgSendFailed         = "Falha ao enviar newsletter"
	MsgInternal           = "Erro interno ao enviar newsletter"
	MsgInProgress         = "Esta newsletter já está sendo enviada"
	MsgAlreadySent        = "Esta newsletter já foi enviada"

	msgSentFormat   = "Newsletter enviada com sucesso! %d emails enviados"
	msgFailedFormat = "%s. %d emails falharam."
	msgInterrupted  = "%s. Envio interrompido."
	msgLockLost     = "%s. Envio interrompido: outro processo assumiu esta newsletter."
)

// Sentinel errors carried in Result.Err.
var (
	ErrIssueNotFound = fmt.Errorf("issue: %w", domain.ErrNotFound)
	ErrNotPublished  = &domain.ValidationError{Field: "slug", Message: "issue is not published yet"}
	ErrNoSubscribers = fmt.Errorf("confirmed subscribers: %w", domain.ErrNotFound)
	ErrAllFailed     = &domain.ExternalServiceError{Service: "mailer", Err: errors.New("every recipient failed")}
	ErrInProgress    = fmt.Errorf("dispatch already running: %w", domain.ErrConflict)
	ErrAlreadySent   = fmt.Errorf("issue already dispatched: %w", domain.ErrConflict)
	ErrLockLost      = fmt.Errorf("dispatch lock lost: %w", domain.ErrConflict)
)
