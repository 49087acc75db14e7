package cmd

import (
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// ExitWithCode exits the program with a semantic foundry exit code and logs
// the error with the catalog metadata for that code. The logger can be nil
// for failures before logger initialization.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		// Catalog miss, fall back to the raw code
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		os.Exit(int(exitCode))
	}

	if logger == nil {
		writeExitToStderr(info.Code, info.Name, info.Description, msg, err)
		os.Exit(info.Code)
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_description", info.Description),
		zap.String("exit_category", info.Category),
	}

	if envelope, isEnvelope := err.(*errors.ErrorEnvelope); isEnvelope {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("error_message", envelope.Message),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
		if envelope.Original != nil {
			if originalErr, isErr := envelope.Original.(error); isErr {
				err = originalErr
			}
		}
	}

	fields = append(fields, zap.Error(err))
	logger.Error(msg, fields...)

	os.Exit(info.Code)
}

// ExitWithCodeStderr is the variant for failures before any logger exists.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: %s (exit code: %d)\n", msg, exitCode)
		}
		os.Exit(int(exitCode))
	}

	writeExitToStderr(info.Code, info.Name, info.Description, msg, err)
	os.Exit(info.Code)
}

func writeExitToStderr(code int, name, description, msg string, err error) {
	if err != nil {
		if envelope, ok := err.(*errors.ErrorEnvelope); ok {
			fmt.Fprintf(os.Stderr, "FATAL: %s [%s]: %v (correlation: %s)\n",
				msg, envelope.Code, envelope.Message, envelope.CorrelationID)
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
		}
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", code, name, description)
}
