package dialogs

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const helpText = `[yellow]Dashboard Keys[-]

  [green]↑/k[-]      Navigate up
  [green]↓/j[-]      Navigate down
  [green]c[-]        Start charging at a charge point
  [green]s[-]        Stop the selected session
  [green]n[-]        Mark notifications read
  [green]r[-]        Reload and reconnect
  [green]?[-]        This help
  [green]q[-]        Quit

[yellow]Live Updates[-]

  [green]● Live[-]          Receiving session events
  [yellow]◐ Reconnecting[-]  Retrying in a few seconds
  [gray]○ Offline[-]       Not connected; press r

Session events refresh the view after a short pause.

Press [green]Escape[-] or [green]?[-] to close.`

func HelpDialog(onClose func()) *tview.TextView {
	tv := tview.NewTextView()
	tv.SetBorder(true).SetTitle(" Help ").SetTitleAlign(tview.AlignLeft)
	tv.SetDynamicColors(true)
	tv.SetBackgroundColor(tcell.ColorDefault)
	tv.SetText(helpText)
	tv.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape || event.Rune() == '?' {
			onClose()
			return nil
		}
		return event
	})
	return tv
}
