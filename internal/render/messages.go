package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var supported = []language.Tag{language.English, language.Indonesian}

var matcher = language.NewMatcher(supported)

func init() {
	en := language.English
	message.SetString(en, string(ActivityJoined), "You joined %s")
	message.SetString(en, string(ActivityLeft), "You left %s")
	message.SetString(en, string(ActivityCancelled), "You cancelled %s")
	message.SetString(en, string(ActivityCompleted), "%s has wrapped up")
	message.SetString(en, string(ActivityAttended), "You attended %s")
	message.SetString(en, string(ActivityWaitlisted), "You are #%d on the waitlist for %s")
	message.SetString(en, string(ActivityPaymentStart), "Payment of %s started for %s")
	message.SetString(en, string(NotifyJoined), "%s joined your event %s")
	message.SetString(en, string(NotifyLeft), "%s left your event %s")
	message.SetString(en, string(NotifyCancelled), "%s has been cancelled")
	message.SetString(en, string(NotifyReopened), "%s is back on")
	message.SetString(en, string(NotifyOffered), "A seat opened up in %s. Claim it before %s")
	message.SetString(en, string(NotifyOfferExpired), "Your seat offer for %s has expired")
	message.SetString(en, string(NotifyPaymentRefunded), "Your payment of %s for %s was refunded")

	id := language.Indonesian
	message.SetString(id, string(ActivityJoined), "Kamu bergabung di %s")
	message.SetString(id, string(ActivityLeft), "Kamu keluar dari %s")
	message.SetString(id, string(ActivityCancelled), "Kamu membatalkan %s")
	message.SetString(id, string(ActivityCompleted), "%s telah selesai")
	message.SetString(id, string(ActivityAttended), "Kamu menghadiri %s")
	message.SetString(id, string(ActivityWaitlisted), "Kamu antrean ke-%d untuk %s")
	message.SetString(id, string(ActivityPaymentStart), "Pembayaran %s dimulai untuk %s")
	message.SetString(id, string(NotifyJoined), "%s bergabung di acaramu %s")
	message.SetString(id, string(NotifyLeft), "%s keluar dari acaramu %s")
	message.SetString(id, string(NotifyCancelled), "%s dibatalkan")
	message.SetString(id, string(NotifyReopened), "%s dibuka kembali")
	message.SetString(id, string(NotifyOffered), "Ada kursi kosong di %s. Ambil sebelum %s")
	message.SetString(id, string(NotifyOfferExpired), "Tawaran kursi untuk %s sudah kedaluwarsa")
	message.SetString(id, string(NotifyPaymentRefunded), "Pembayaran %s untuk %s telah dikembalikan")
}
