package dialogs

import (
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// ChargePointID normalizes user input to a positive decimal id, so "007"
// submits as "7".
func ChargePointID(text string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n <= 0 {
		return "", false
	}
	return strconv.Itoa(n), true
}

// StartDialog asks for a charge point id. Only digits are accepted.
func StartDialog(onSubmit func(chargePointID string), onCancel func()) *tview.Form {
	form := tview.NewForm()
	form.SetBorder(true).SetTitle(" Start Charging ").SetTitleAlign(tview.AlignLeft)
	form.SetBackgroundColor(tcell.ColorDefault)
	form.SetFieldBackgroundColor(tcell.ColorDefault)

	form.AddInputField("Charge point", "", 12, tview.InputFieldInteger, nil)
	form.AddButton("Start", func() {
		id := form.GetFormItemByLabel("Charge point").(*tview.InputField).GetText()
		if n, ok := ChargePointID(id); ok {
			onSubmit(n)
		}
	})
	form.AddButton("Cancel", onCancel)
	form.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			onCancel()
			return nil
		}
		return event
	})
	return form
}
