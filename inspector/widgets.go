package inspector

import (
	rl "github.com/gen2brain/raylib-go/raylib"
)

// DrawLabel renders a name and value pair and returns the line height.
func DrawLabel(x, y int32, name, value string) int32 {
	rl.DrawText(name, x, y, 14, ColorTextDim)
	rl.DrawText(value, x+90, y, 14, ColorText)
	return 20
}
