package sugar

import (
	tea "github.com/charmbracelet/bubbletea"
)

// ErrorModel is a tea.Model that can end in an error.
type ErrorModel interface {
	tea.Model
	GetError() error
}

// RunProgramWithErrors runs model to completion and surfaces the error the
// final model ended with.
func RunProgramWithErrors(model ErrorModel, opts ...tea.ProgramOption) (resultModel tea.Model, err error) {
	resultModel, teaErr := tea.NewProgram(model, opts...).Run()
	if errorModel, ok := resultModel.(ErrorModel); ok {
		err = errorModel.GetError()
	}

	// Bubble Tea errors override custom errors
	if teaErr != nil {
		err = teaErr
	}

	return
}
