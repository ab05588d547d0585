package prompt

import "github.com/snappy-loop/wishes/internal/models"

// Theme identifiers
const (
	ThemeSnowGiftsTrees       = "snow-gifts-trees"
	ThemeFantasticalCreatures = "fantastical-creatures"
	ThemeNatureSnowStars      = "nature-snow-stars"
	ThemeCustom               = "custom"
)

var presetThemes = []models.Theme{
	{
		ID:    ThemeSnowGiftsTrees,
		Title: "Snow, Gifts, and Trees",
		Template: "A festive winter scene with a cozy cabin in the background surrounded by snow-covered pine trees. " +
			"The foreground features a stack of colorful, intricately wrapped gifts glowing softly under the moonlight. " +
			"Twinkling fairy lights are draped across the trees, and a cheerful snowman wearing a scarf and hat stands " +
			"beside a wooden sign that says 'Happy New Year 2025' in elegant, frosted letters. The sky above is filled " +
			"with gently falling snowflakes and a brilliant aurora borealis.",
	},
	{
		ID:    ThemeFantasticalCreatures,
		Title: "Fantastical Creatures",
		Template: "An enchanted forest illuminated by bioluminescent plants and glowing mushrooms. Mystical creatures " +
			"like fairies, unicorns, and forest spirits are gathered in a circle celebrating the New Year. A large magical " +
			"tree in the center has 'Happy New Year 2025' written in golden glowing letters on its trunk. The atmosphere " +
			"is vibrant, with shimmering sparkles, colorful lanterns hanging from the branches, and fantastical lights " +
			"creating a whimsical, dreamlike environment.",
	},
	{
		ID:    ThemeNatureSnowStars,
		Title: "Nature Snow with Stars",
		Template: "A tranquil snowy landscape under a crystal-clear night sky filled with stars and a radiant Milky Way. " +
			"Snow-covered hills stretch into the distance, and a lone frozen lake reflects the celestial display above. " +
			"The scene is adorned with twinkling frost-covered trees, and the words 'Happy New Year 2025' are written in " +
			"the snow, glowing with a soft golden hue. Shooting stars streak across the sky, adding a touch of magic to " +
			"the serene and peaceful setting.",
	},
}

var customTheme = models.Theme{ID: ThemeCustom, Title: "Custom", Custom: true}

var examplePrompts = []string{
	"A futuristic cityscape at midnight with floating holographic '2025' numbers, flying cars, and neon lights " +
		"reflecting off glass buildings. Happy New Year 2025 written in sparkling digital letters across the sky.",
	"A magical underwater scene with bioluminescent sea creatures, coral reefs glowing in rainbow colors, and marine " +
		"life celebrating the new year. 'Happy New Year 2025' formed by shimmering bubbles rising to the surface.",
	"A cozy coffee shop interior decorated for New Year, with fairy lights, vintage decorations, and a steaming cup " +
		"of coffee with '2025' forming in the steam. A chalkboard in the background displays 'Happy New Year' in " +
		"artistic lettering.",
}

// Themes returns the preset themes followed by the custom theme.
func Themes() []models.Theme {
	out := make([]models.Theme, 0, len(presetThemes)+1)
	out = append(out, presetThemes...)
	return append(out, customTheme)
}

// Lookup returns the theme with the given id.
func Lookup(id string) (models.Theme, bool) {
	if id == ThemeCustom {
		return customTheme, true
	}
	for _, t := range presetThemes {
		if t.ID == id {
			return t, true
		}
	}
	return models.Theme{}, false
}

// ExamplePrompts returns sample custom prompts shown next to the custom prompt box.
func ExamplePrompts() []string {
	return append([]string(nil), examplePrompts...)
}
