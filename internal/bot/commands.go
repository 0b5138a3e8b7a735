package bot

import (
	"sentinel-shield/internal/backup"
	"sentinel-shield/internal/deletion"
	"sentinel-shield/internal/registry"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
)

var (
	manageServer int64 = discordgo.PermissionManageServer
	guildOnly          = false
	minTrust           = 1.0
	maxTrust           = 5.0
	minSafeLevel       = 1.0
	maxSafeLevel       = 3.0
)

func localized(en, fr, es string) *map[discordgo.Locale]string {
	return &map[discordgo.Locale]string{
		discordgo.EnglishUS: en,
		discordgo.French:    fr,
		discordgo.SpanishES: es,
	}
}

func subcommand(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: description,
		Options:     options,
	}
}

func stringOption(name, description string, required bool, choices ...string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: description,
		Required:    required,
		Choices: lo.Map(choices, func(choice string, _ int) *discordgo.ApplicationCommandOptionChoice {
			return &discordgo.ApplicationCommandOptionChoice{Name: choice, Value: choice}
		}),
	}
}

func typedOption(kind discordgo.ApplicationCommandOptionType, name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: kind, Name: name, Description: description, Required: required}
}

func intOption(name, description string, required bool, min, max float64) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: description,
		Required:    required,
		MinValue:    &min,
		MaxValue:    max,
	}
}

// commandDefinitions is the full slash command surface. Every command needs Manage Server.
func commandDefinitions() []*discordgo.ApplicationCommand {
	entityTypes := lo.Map(deletion.EntityTypes, func(t deletion.EntityType, _ int) string { return string(t) })
	backupTypes := []string{string(backup.TypeAll), string(backup.TypeRoles), string(backup.TypeChannels)}
	toggleable := registry.Names(registry.Toggleable())
	bypassTargets := append([]string{string(registry.ModuleAll)}, registry.Names(registry.All())...)

	commands := []*discordgo.ApplicationCommand{
		{
			Name:                     "deletionmonitor",
			Description:              "Capture deleted channels and roles for undo",
			DescriptionLocalizations: localized("Capture deleted channels and roles for undo", "Sauvegarder les salons et roles supprimes", "Guardar canales y roles eliminados"),
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("enable", "Start capturing deletions"),
				subcommand("disable", "Stop capturing deletions"),
				subcommand("status", "Show whether deletions are captured"),
			},
		},
		{
			Name:                     "undo",
			Description:              "Restore a recently deleted channel, category or role",
			DescriptionLocalizations: localized("Restore a recently deleted channel, category or role", "Restaurer un salon, une categorie ou un role supprime", "Restaurar un canal, categoria o rol eliminado"),
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("list", "List what can be restored"),
				subcommand("restore", "Restore the most recent match",
					stringOption("type", "What was deleted", true, entityTypes...),
					stringOption("name", "Name or part of the name", true),
				),
			},
		},
		{
			Name:                     "backup",
			Description:              "Export and restore server roles and channels",
			DescriptionLocalizations: localized("Export and restore server roles and channels", "Exporter et restaurer les roles et salons", "Exportar y restaurar roles y canales"),
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("create", "Create a backup",
					stringOption("label", "Backup name (default: timestamp)", false),
					stringOption("type", "What to back up", false, backupTypes...),
				),
				subcommand("list", "List backups"),
				subcommand("info", "Show a backup", stringOption("label", "Backup name", true)),
				subcommand("restore", "Recreate missing roles and channels from a backup",
					stringOption("label", "Backup name", true),
					typedOption(discordgo.ApplicationCommandOptionBoolean, "confirm", "Set to true to start the restore", true),
				),
				subcommand("delete", "Delete a backup", stringOption("label", "Backup name", true)),
			},
		},
		{
			Name:                     "logchannel",
			Description:              "Where protection events are posted",
			DescriptionLocalizations: localized("Where protection events are posted", "Salon des evenements de protection", "Canal de eventos de proteccion"),
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("set", "Set the log channel", typedOption(discordgo.ApplicationCommandOptionChannel, "channel", "Log channel", true)),
				subcommand("clear", "Stop posting protection events"),
				subcommand("status", "Show the log channel"),
			},
		},
		{
			Name:                     "trust",
			Description:              "Users exempt from enforcement",
			DescriptionLocalizations: localized("Users exempt from enforcement", "Utilisateurs exemptes", "Usuarios exentos"),
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("add", "Trust a user or change their level",
					typedOption(discordgo.ApplicationCommandOptionUser, "user", "User to trust", true),
					intOption("level", "Trust level 1-5 (default 1)", false, minTrust, maxTrust),
				),
				subcommand("remove", "Remove a trusted user", typedOption(discordgo.ApplicationCommandOptionUser, "user", "User to remove", true)),
				subcommand("list", "List trusted users"),
			},
		},
		{
			Name:                     "rolebypass",
			Description:              "Roles exempt from specific modules",
			DescriptionLocalizations: localized("Roles exempt from specific modules", "Roles exemptes de certains modules", "Roles exentos de modulos"),
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("add", "Let a role bypass a module",
					typedOption(discordgo.ApplicationCommandOptionRole, "role", "Role", true),
					stringOption("module", "Module to bypass", true, bypassTargets...),
				),
				subcommand("remove", "Remove a role bypass",
					typedOption(discordgo.ApplicationCommandOptionRole, "role", "Role", true),
					stringOption("module", "Module", true, bypassTargets...),
				),
				subcommand("list", "List role bypasses"),
			},
		},
		{
			Name:                     "module",
			Description:              "Enable or disable protection modules",
			DescriptionLocalizations: localized("Enable or disable protection modules", "Activer ou desactiver les modules", "Activar o desactivar modulos"),
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("enable", "Enable a module", stringOption("name", "Module", true, toggleable...)),
				subcommand("disable", "Disable a module", stringOption("name", "Module", true, toggleable...)),
				subcommand("list", "List modules by category"),
			},
		},
		{
			Name:                     "protection",
			Description:              "Guild-wide protection switch",
			DescriptionLocalizations: localized("Guild-wide protection switch", "Interrupteur global de protection", "Interruptor global de proteccion"),
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("enable", "Turn protection on"),
				subcommand("disable", "Turn protection off"),
				subcommand("status", "Show protection status"),
			},
		},
		{
			Name:                     "safemode",
			Description:              "Lock the server down",
			DescriptionLocalizations: localized("Lock the server down", "Verrouiller le serveur", "Bloquear el servidor"),
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("enable", "Enter safe mode",
					intOption("level", "1 messages, 2 media, 3 visibility", false, minSafeLevel, maxSafeLevel),
					stringOption("reason", "Why", false),
				),
				subcommand("disable", "Leave safe mode and restore permissions"),
				subcommand("status", "Show safe mode status"),
			},
		},
		{
			Name:                     "threatscore",
			Description:              "Score how suspicious a member looks",
			DescriptionLocalizations: localized("Score how suspicious a member looks", "Evaluer le risque d'un membre", "Evaluar el riesgo de un miembro"),
			Options: []*discordgo.ApplicationCommandOption{
				typedOption(discordgo.ApplicationCommandOptionUser, "user", "Member to score", true),
			},
		},
		{
			Name:                     "linkwhitelist",
			Description:              "Domains allowed by anti-links",
			DescriptionLocalizations: localized("Domains allowed by anti-links", "Domaines autorises", "Dominios permitidos"),
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("add", "Allow a domain", stringOption("domain", "Domain or URL", true)),
				subcommand("remove", "Remove a domain", stringOption("domain", "Domain or URL", true)),
				subcommand("list", "List allowed domains"),
			},
		},
		{
			Name:                     "antiword",
			Description:              "Words removed by anti-word",
			DescriptionLocalizations: localized("Words removed by anti-word", "Mots bloques", "Palabras bloqueadas"),
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("add", "Block a word", stringOption("word", "Word", true)),
				subcommand("remove", "Unblock a word", stringOption("word", "Word", true)),
				subcommand("list", "List blocked words"),
			},
		},
	}

	for _, cmd := range commands {
		cmd.DefaultMemberPermissions = &manageServer
		cmd.DMPermission = &guildOnly
	}
	return commands
}

// registerCommands makes the global command set match commandDefinitions and removes
// stale guild-scoped commands left by older versions.
func (b *Bot) registerCommands() error {
	commands := commandDefinitions()

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}

	for _, guildID := range b.guildIDs() {
		guildCmds, err := b.session.ApplicationCommands(appID, guildID)
		if err != nil {
			continue
		}
		for _, cmd := range guildCmds {
			_ = b.session.ApplicationCommandDelete(appID, guildID, cmd.ID)
		}
	}
	return nil
}
