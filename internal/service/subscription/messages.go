package subscription

// Visitor-facing outcome messages. Handlers and tests compare against these.
const (
	MsgSubscribed          = "Inscrição realizada com sucesso! Confirme seu email."
	MsgAlreadySubscribed   = "Este email já está inscrito na newsletter"
	MsgConfirmationPending = "Já enviamos um email de confirmação. Verifique sua caixa de entrada."

	MsgConfirmed        = "Email confirmado com sucesso! Bem-vindo ao Puro Suco!"
	MsgAlreadyConfirmed = "Email já confirmado anteriormente"
	MsgInvalidToken     = "Token de confirmação inválido"
	MsgTokenNotPending  = "Este token não é válido para confirmação"

	MsgUnsubscribed       = "Cancelamento realizado com sucesso"
	MsgAlreadyUnsubscribe = "Você já havia cancelado a inscrição"
	MsgNotFound           = "Subscriber não encontrado"

	MsgInvalidEmail = "Email inválido"
	MsgInternal     = "Erro interno. Tente novamente mais tarde."
)
