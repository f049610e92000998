package cerr

import (
	"fmt"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
)

// F is a shorthand for a bag of error context fields.
type F map[string]interface{}

// Context accumulates structured fields that get attached to errors
// created or wrapped through it.
type Context struct {
	fields F
}

func Field(key string, value interface{}) Context {
	return Context{}.Field(key, value)
}

func Fields(fields F) Context {
	return Context{}.Fields(fields)
}

func Wrap(err error) WrappedContext {
	return Context{}.Wrap(err)
}

func Error(msg string) error {
	return Context{}.Error(msg)
}

func (c Context) Field(key string, value interface{}) Context {
	newFields := F{}
	for k, v := range c.fields {
		newFields[k] = v
	}
	newFields[key] = value

	return Context{fields: newFields}
}

func (c Context) Fields(fields F) Context {
	newFields := F{}
	for k, v := range c.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return Context{fields: newFields}
}

func (c Context) Wrap(err error) WrappedContext {
	return WrappedContext{
		context: c,
		wrapped: err,
	}
}

func (c Context) Error(msg string) error {
	return c.attachFields(errors.New(msg))
}

func (c Context) attachFields(err error) error {
	for k, v := range c.fields {
		err = errors.WithDetail(err, fmt.Sprintf("%s: %+v", k, v))
	}

	return err
}

// WrappedContext is a Context that already holds an error to be wrapped.
type WrappedContext struct {
	context Context
	wrapped error
}

func (w WrappedContext) Error(msg string) error {
	return w.context.attachFields(errors.Wrap(w.wrapped, msg))
}

// Mark attaches a sentinel to the eventual error so that callers can
// match it with errors.Is without depending on the message.
func (w WrappedContext) Mark(sentinel error) WrappedContext {
	return WrappedContext{
		context: w.context,
		wrapped: errors.Mark(w.wrapped, sentinel),
	}
}

// Log writes the error with its accumulated details. Meant for the top
// of a handler where the error terminates.
func Log(err error) {
	if err == nil {
		return
	}

	logger := log.WithError(err)
	for _, detail := range errors.GetAllDetails(err) {
		logger = logger.WithField("detail", detail)
	}

	logger.Error("Error occurred")
}
