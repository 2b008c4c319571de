// Package subscription implements the subscriber lifecycle: subscribe,
// confirm by token, and unsubscribe by token or email.
//
// Every entry point returns a Result instead of an error. Business
// rejections (already subscribed, invalid token, ...) and infrastructure
// failures (store down, email provider rejected the message) both come back
// as Result{Success: false}; infrastructure failures are logged and reported
// with a generic message so nothing internal reaches the visitor.
//
// The service depends on the Repository and Mailer interfaces defined in
// repository.go. It never imports net/http or database/sql directly.
package subscription
