package common

import (
	"context"
	"time"

	"resumereview/internal/errors"
)

// LoadInputFunc reads and parses the input of a command
type LoadInputFunc[Input any] func(ctx context.Context, fp *FileProcessor) (Input, error)

// LogDetailsFunc defines how to log the start of an operation.
type LogDetailsFunc[Input any] func(input Input, cfg CommandConfig)

// OperationFunc turns the input of a command into its output
type OperationFunc[Input, Output any] func(context.Context, Input) (Output, error)

// RunCommand loads the input, runs the operation and writes the formatted
// result, the flow every file based command shares.
func RunCommand[Input, Output any](
	ctx context.Context,
	logger *errors.Logger,
	cmdConfig CommandConfig,
	loadInput LoadInputFunc[Input],
	operation OperationFunc[Input, Output],
	logDetails LogDetailsFunc[Input],
) error {
	if logger == nil {
		logger = errors.Discard()
	}
	fileProcessor := NewFileProcessor(logger, cmdConfig.MaxFileSize)
	outputHandler := NewOutputHandler(logger)
	if cmdConfig.Stdout != nil {
		outputHandler = NewOutputHandlerWithWriter(logger, cmdConfig.Stdout)
	}

	// Fail before any backend call when the output cannot be written
	if err := fileProcessor.ValidateOutputFile(cmdConfig.OutputFile); err != nil {
		return err
	}

	input, err := loadInput(ctx, fileProcessor)
	if err != nil {
		return err
	}

	if logDetails != nil {
		logDetails(input, cmdConfig)
	}

	start := time.Now()
	result, err := operation(ctx, input)
	if err != nil {
		return err
	}
	logger.Debug("Operation finished", "duration", time.Since(start).String())

	return outputHandler.HandleOutput(result, cmdConfig)
}
