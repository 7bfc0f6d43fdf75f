package errs

import "errors"

// ErrTicketNotFound: тикет с указанным id отсутствует.
var ErrTicketNotFound = errors.New("ticket not found")
