// Terrain preview tool - interactive height field tuning with sliders.
//
// Usage: go run ./cmd/terrainpreview [-config path]
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"strings"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/sand/config"
	"github.com/pthm-cable/sand/terrain"
)

const (
	windowWidth  = 1000
	windowHeight = 720
	previewSize  = 512
	panelWidth   = windowWidth - previewSize - 30
	gridSize     = 128
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	flag.Parse()

	base, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	defaults := base.Terrain
	tc := defaults

	rl.InitWindow(windowWidth, windowHeight, "Terrain Preview")
	defer rl.CloseWindow()
	rl.SetTargetFPS(30)

	img := rl.GenImageColor(gridSize, gridSize, rl.Black)
	texture := rl.LoadTextureFromImage(img)
	rl.UnloadImage(img)
	defer rl.UnloadTexture(texture)

	var field *terrain.Field
	needsRegen := true

	for !rl.WindowShouldClose() {
		if needsRegen {
			field, err = buildField(tc)
			if err != nil {
				log.Printf("terrain: %v", err)
			} else {
				updateTexture(texture, field, float32(tc.Amplitude))
			}
			needsRegen = false
		}

		rl.BeginDrawing()
		rl.ClearBackground(rl.RayWhite)

		rl.DrawTexturePro(
			texture,
			rl.Rectangle{X: 0, Y: 0, Width: gridSize, Height: gridSize},
			rl.Rectangle{X: 10, Y: 10, Width: previewSize, Height: previewSize},
			rl.Vector2{X: 0, Y: 0},
			0,
			rl.White,
		)
		rl.DrawRectangleLines(10, 10, previewSize, previewSize, rl.DarkGray)

		if field != nil {
			lo, hi, mean, steep := fieldStats(field)
			statsY := int32(previewSize + 25)
			rl.DrawText(fmt.Sprintf("Min: %.3f  Max: %.3f  Avg: %.3f", lo, hi, mean), 15, statsY, 16, rl.DarkGray)
			rl.DrawText(fmt.Sprintf("Slopes over 35 deg: %.1f%%", steep*100), 15, statsY+20, 16, rl.DarkGray)
		}

		panelX := float32(previewSize + 20)
		panelY := float32(10)
		rl.DrawText("Terrain Parameters", int32(panelX), int32(panelY), 20, rl.DarkGray)
		panelY += 35

		sliders := []struct {
			label    string
			value    *float64
			min, max float32
			format   string
		}{
			{"Scale (features per unit)", &tc.Scale, 0.01, 1.0, "%.3f"},
			{"Lacunarity (frequency multiplier)", &tc.Lacunarity, 1.5, 4.0, "%.2f"},
			{"Gain (amplitude multiplier)", &tc.Gain, 0.2, 0.9, "%.2f"},
			{"Amplitude (peak height)", &tc.Amplitude, 0.1, 5.0, "%.2f"},
		}
		for _, s := range sliders {
			rl.DrawText(s.label, int32(panelX), int32(panelY), 14, rl.Gray)
			panelY += 18
			v := gui.SliderBar(
				rl.Rectangle{X: panelX, Y: panelY, Width: float32(panelWidth - 80), Height: 20},
				fmt.Sprintf("%g", s.min), fmt.Sprintf("%g", s.max),
				float32(*s.value), s.min, s.max,
			)
			rl.DrawText(fmt.Sprintf(s.format, *s.value), int32(panelX+float32(panelWidth-70)), int32(panelY+2), 16, rl.DarkGray)
			if float64(v) != *s.value {
				*s.value = float64(v)
				needsRegen = true
			}
			panelY += 35
		}

		rl.DrawText("Octaves (FBM detail level)", int32(panelX), int32(panelY), 14, rl.Gray)
		panelY += 18
		newOctaves := gui.SliderBar(
			rl.Rectangle{X: panelX, Y: panelY, Width: float32(panelWidth - 80), Height: 20},
			"1", "8",
			float32(tc.Octaves), 1, 8,
		)
		rl.DrawText(fmt.Sprintf("%d", tc.Octaves), int32(panelX+float32(panelWidth-70)), int32(panelY+2), 16, rl.DarkGray)
		if int(newOctaves) != tc.Octaves {
			tc.Octaves = int(newOctaves)
			needsRegen = true
		}
		panelY += 35

		rl.DrawText("Seed", int32(panelX), int32(panelY), 14, rl.Gray)
		panelY += 18
		newSeed := gui.SliderBar(
			rl.Rectangle{X: panelX, Y: panelY, Width: float32(panelWidth - 80), Height: 20},
			"0", "99999",
			float32(tc.Seed), 0, 99999,
		)
		rl.DrawText(fmt.Sprintf("%d", tc.Seed), int32(panelX+float32(panelWidth-70)), int32(panelY+2), 16, rl.DarkGray)
		if int64(newSeed) != tc.Seed {
			tc.Seed = int64(newSeed)
			needsRegen = true
		}
		panelY += 45

		if gui.Button(rl.Rectangle{X: panelX, Y: panelY, Width: 120, Height: 30}, "Random Seed") {
			tc.Seed = int64(rl.GetRandomValue(0, 99999))
			needsRegen = true
		}
		if gui.Button(rl.Rectangle{X: panelX + 130, Y: panelY, Width: 120, Height: 30}, "Reset All") {
			tc = defaults
			needsRegen = true
		}
		panelY += 55

		rl.DrawText("YAML Config:", int32(panelX), int32(panelY), 16, rl.DarkGray)
		panelY += 25
		text := terrainYAML(tc)
		for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
			rl.DrawText(line, int32(panelX), int32(panelY), 14, rl.Gray)
			panelY += 16
		}

		rl.DrawText("Press C to copy YAML to clipboard", int32(panelX), int32(windowHeight-30), 12, rl.LightGray)
		if rl.IsKeyPressed(rl.KeyC) {
			rl.SetClipboardText(text)
		}

		rl.EndDrawing()
	}
}

// buildField samples the noise terrain at preview resolution.
func buildField(tc config.TerrainConfig) (*terrain.Field, error) {
	return terrain.NewNoise(gridSize, tc.Size.Mgl(), terrain.NoiseParams{
		Seed:       tc.Seed,
		Scale:      float32(tc.Scale),
		Octaves:    tc.Octaves,
		Lacunarity: float32(tc.Lacunarity),
		Gain:       float32(tc.Gain),
		Amplitude:  float32(tc.Amplitude),
	})
}

// terrainYAML renders the tuned section in config file form.
func terrainYAML(tc config.TerrainConfig) string {
	data, err := yaml.Marshal(map[string]config.TerrainConfig{"terrain": tc})
	if err != nil {
		return err.Error()
	}
	return string(data)
}

// fieldStats returns the height range, mean and the fraction of samples
// steeper than 35 degrees.
func fieldStats(f *terrain.Field) (lo, hi, mean, steep float32) {
	samples := f.Samples()
	lo, hi = samples[0].Height, samples[0].Height
	var sum float32
	steepCos := float32(0.819) // cos 35 deg
	var n int
	for _, s := range samples {
		lo = min(lo, s.Height)
		hi = max(hi, s.Height)
		sum += s.Height
		if s.Normal.Y() < steepCos {
			n++
		}
	}
	return lo, hi, sum / float32(len(samples)), float32(n) / float32(len(samples))
}

// updateTexture shades the height field: color by height, light by normal.
func updateTexture(texture rl.Texture2D, f *terrain.Field, amplitude float32) {
	light := mgl32.Vec3{-0.5, 1, -0.3}.Normalize()
	samples := f.Samples()
	pixels := make([]color.RGBA, len(samples))
	for i, s := range samples {
		h := float32(0)
		if amplitude > 0 {
			h = mgl32.Clamp(s.Height/amplitude, 0, 1)
		}
		lum := 0.4 + 0.6*max(s.Normal.Dot(light), 0)
		// Low ground dark brown, peaks pale sand
		r := (70 + h*160) * lum
		g := (50 + h*140) * lum
		b := (30 + h*100) * lum
		pixels[i] = color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255}
	}
	rl.UpdateTexture(texture, pixels)
}
