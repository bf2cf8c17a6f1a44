package errors

import "github.com/sirupsen/logrus"

// Fields returns the structured logging fields carried by err. Non-AppErrors
// yield an empty set.
func Fields(err error) logrus.Fields {
	fields := logrus.Fields{}

	appErr, ok := as(err)
	if !ok {
		return fields
	}

	fields["error_code"] = appErr.Code
	fields["retryable"] = appErr.Retryable
	for k, v := range appErr.Context {
		fields[k] = v
	}
	return fields
}

// LogError logs err at error level with its AppError context attached
func LogError(logger logrus.FieldLogger, err error, message string) {
	logger.WithError(err).WithFields(Fields(err)).Error(message)
}

// LogWarn logs err at warn level with its AppError context attached
func LogWarn(logger logrus.FieldLogger, err error, message string) {
	logger.WithError(err).WithFields(Fields(err)).Warn(message)
}
