// Package texts renders the user-facing Uzbek message templates. All output
// is HTML (parse mode HTML) with user-supplied values escaped.
package texts

import (
	"fmt"
	"html"
	"time"
)

// AgreeButtonLabel is the caption on the welcome/reminder inline button.
const AgreeButtonLabel = "Bu yerga bosing"

const welcomeText = "Salom %s! Guruhga xush kelibsiz!\n\n" +
	"Siz hozir guruhda faqat o'qiy olasiz. Yozish imkoniyatiga ega bo'lish uchun " +
	"quyidagi tugmani bosing va qoidalarga roziligingizni bildiring"

// WrongUserAlert is shown as a callback alert when somebody presses another
// user's agree button.
const WrongUserAlert = "Qo'lingiz bilmasdan boshqa joyga tegib\n" +
	"ketdi ;)\n\n" +
	"Shoshmang, hali sizgayam boshqa biror\n" +
	"tugma jo'natarmiz boshinga."

const reminderText = "⚠️ %s qoidalarga shu paytgacha rozilik bildirmagan ko'rinadi. " +
	"Iltimos, quyidagi tugmani bosing va so'ralgan topshiriqni bajaring. " +
	"Undan keyin sizga shu guruhda yozish imkoniyatini beramiz;)"

const rulesText = "Guruhda ushbu qoidalarga qat'iy amal qiling:\n\n" +
	" - botlar haqida gaplashish;\n" +
	" - guruh mavzusiga aloqasi bo'lmagan masalalarda gaplashish;\n" +
	" - odob-axloq qoidalariga zid mazmundagi gap-so'zlar;\n" +
	" - guruhga ruxsatsiz bot qo'shish;\n" +
	" - guruhga kanal, guruh, bot yoki boshqa mahsulotlar reklamasini jo'natish;\n" +
	" - xabar ustiga chiqib ketadigan darajadagi belgilarning nikingizga " +
	"yozilishi taqiqlanadi.\n\n" +
	"Agar shu qoidalarga rozi bo'lsangiz hoziroq %s so'zini yozib jo'nating. " +
	"Unutmang, qoidaga qarshi har qanday harakat jazoga olib kelishi mumkin."

const successText = "Safimizda yangi a'zo bor!\n" +
	"Hozirgina %s guruh qoidalariga rozilik bildirdi"

// DMSuccess confirms verification in the user's private chat.
const DMSuccess = "Qoidalarga rozilik bildirganingiz uchun rahmat. Endi guruhda xabar yubora olasiz."

// NoActiveSession answers a bare /start with no pending verification.
const NoActiveSession = "Hozircha sizda faol tekshiruv yo'q. Guruhdagi tugma orqali kiring."

// Mention renders a tg://user HTML mention with the display name escaped.
func Mention(userID int64, displayName string) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, html.EscapeString(displayName))
}

// Welcome renders the group welcome message for a newly locked member.
func Welcome(userID int64, displayName string) string {
	return fmt.Sprintf(welcomeText, Mention(userID, displayName))
}

// Reminder renders the group reminder for a member who has not yet agreed.
func Reminder(userID int64, displayName string) string {
	return fmt.Sprintf(reminderText, Mention(userID, displayName))
}

// Success renders the group announcement after verification completes.
func Success(userID int64, displayName string) string {
	return fmt.Sprintf(successText, Mention(userID, displayName))
}

// Rules renders the private-chat rules text with the magic word bolded.
func Rules(magicWord string) string {
	return fmt.Sprintf(rulesText, "<b>"+html.EscapeString(magicWord)+"</b>")
}

// GroupMuted renders the group notification for a muted user.
func GroupMuted(userID int64, displayName, untilStr string) string {
	return fmt.Sprintf(
		"%s guruhda taqiqlangan mavzudagi gaplari uchun %s gacha guruhda yozishdan cheklab qo'yildi.",
		Mention(userID, displayName), untilStr)
}

// FormatUntil renders a mute deadline in the configured timezone.
func FormatUntil(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02 15:04")
}

// UserCard carries the identity fields shown on admin-facing cards.
type UserCard struct {
	UserID   int64
	FullName string
	Username string
	Phone    string
}

func (c UserCard) name() string {
	if c.FullName == "" {
		return fmt.Sprintf("ID:%d", c.UserID)
	}
	return html.EscapeString(c.FullName)
}

func (c UserCard) identityBlock() string {
	username := "—"
	if c.Username != "" {
		username = "@" + html.EscapeString(c.Username)
	}
	phone := "—"
	if c.Phone != "" {
		phone = html.EscapeString(c.Phone)
	}
	name := c.name()
	link := fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, c.UserID, name)
	return fmt.Sprintf(
		"👤 Foydalanuvchi: %s\n"+
			"• Full name: %s\n"+
			"• Username: %s\n"+
			"• ID: <code>%d</code>\n"+
			"• Phone: %s",
		link, name, username, c.UserID, phone)
}

// KeywordCard renders the admin notification for a lexicon hit.
func KeywordCard(c UserCard, matchedWord, untilStr string, groupID int64) string {
	return fmt.Sprintf(
		"🚫 Taqiqlangan so‘z ishlatildi\n\n"+
			"%s\n\n"+
			"🧾 Sabab: <b>%s</b>\n"+
			"⏳ Cheklov: <b>%s</b> gacha\n\n"+
			"Guruh: <code>%d</code>",
		c.identityBlock(), html.EscapeString(matchedWord), html.EscapeString(untilStr), groupID)
}

// AICard renders the admin notification for an AI-classifier hit.
func AICard(c UserCard, label string, confidence float64, reason, untilStr, excerpt string) string {
	return fmt.Sprintf(
		"🤖 AI moderatsiya\n\n"+
			"%s\n\n"+
			"🧾 Aniqlangan mavzu: <b>%s</b>\n"+
			"📈 Ishonchlilik: <b>%.2f</b>\n"+
			"📝 Sabab: %s\n\n"+
			"⏳ Cheklov: <b>%s</b> gacha\n\n"+
			"🧩 Matn: <code>%s</code>",
		c.identityBlock(), html.EscapeString(label), confidence,
		html.EscapeString(reason), html.EscapeString(untilStr), html.EscapeString(excerpt))
}
